package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/pkg/errors"
)

const defaultTimeout = 2 * time.Second

// maxResponseBytes bounds the decoded response body.
const maxResponseBytes = 8 << 20

type recognizeRequest struct {
	Text string `json:"text"`
}

type recognizeResponse struct {
	Entities []wireEntity `json:"entities"`
}

// wireEntity offsets count Unicode code points, not bytes, and End is
// exclusive.  Text is the entity surface as the recognizer saw it.
type wireEntity struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
	Label string `json:"label"`
}

// HTTPSource posts text to a recognizer endpoint.
type HTTPSource struct {
	endpoint   string
	httpClient *http.Client
	labels     LabelMap
	retryMax   int
	retryWait  time.Duration
	logger     logging.Logger
}

// Option configures an HTTPSource.
type Option func(*HTTPSource)

// WithHTTPClient sets the underlying client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *HTTPSource) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithTimeout sets the request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(s *HTTPSource) {
		if d > 0 {
			s.httpClient.Timeout = d
		}
	}
}

// WithLabels replaces the label map.
func WithLabels(m LabelMap) Option {
	return func(s *HTTPSource) {
		if m != nil {
			s.labels = m
		}
	}
}

// WithRetry sets how often a failed call is retried and the pause between
// attempts.
func WithRetry(max int, wait time.Duration) Option {
	return func(s *HTTPSource) {
		if max >= 0 {
			s.retryMax = max
		}
		if wait > 0 {
			s.retryWait = wait
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *HTTPSource) { s.logger = logging.OrNop(l) }
}

// NewHTTPSource validates endpoint and builds the client.
func NewHTTPSource(endpoint string, opts ...Option) (*HTTPSource, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "ner endpoint %q must be an http(s) URL", endpoint)
	}
	s := &HTTPSource{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		labels:     NewLabelMap(nil),
		retryWait:  100 * time.Millisecond,
		logger:     logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Recognize implements Source.
func (s *HTTPSource) Recognize(ctx context.Context, text string) ([]Entity, error) {
	body, err := json.Marshal(recognizeRequest{Text: text})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode ner request")
	}

	var lastErr error
	for attempt := 0; attempt <= s.retryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.retryWait):
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), errors.ErrCodeNERUnavailable, "ner request cancelled")
			}
		}
		resp, err := s.call(ctx, body)
		if err == nil {
			return s.convert(text, resp), nil
		}
		lastErr = err
		if errors.IsCode(err, errors.ErrCodeNERBadResponse) {
			break
		}
		s.logger.Debug("ner call failed", logging.Int("attempt", attempt+1), logging.Err(err))
	}
	return nil, lastErr
}

func (s *HTTPSource) call(ctx context.Context, body []byte) (*recognizeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNERUnavailable, "build ner request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNERUnavailable, "ner request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, errors.New(errors.ErrCodeNERUnavailable, "ner endpoint returned an error status").
			WithDetail(fmt.Sprintf("status=%d", resp.StatusCode))
	}

	var out recognizeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNERBadResponse, "decode ner response")
	}
	return &out, nil
}

// convert maps code point offsets to byte offsets and turns exclusive ends
// into inclusive ones.  Entities with unknown labels, offsets outside text
// or a Text that disagrees with the addressed slice are dropped.
func (s *HTTPSource) convert(text string, resp *recognizeResponse) []Entity {
	offsets := runeOffsets(text)
	runes := len(offsets) - 1
	out := make([]Entity, 0, len(resp.Entities))
	for _, e := range resp.Entities {
		if e.Start < 0 || e.End <= e.Start || e.End > runes {
			continue
		}
		cat, ok := s.labels.Category(e.Label)
		if !ok {
			continue
		}
		start, end := offsets[e.Start], offsets[e.End]
		surface := text[start:end]
		if e.Text != "" && surface != e.Text {
			s.logger.Debug("ner entity text mismatch",
				logging.Int("start", e.Start), logging.Int("end", e.End),
				logging.String("text", e.Text), logging.String("surface", surface))
			continue
		}
		out = append(out, Entity{
			Start:    start,
			End:      end - 1,
			Surface:  surface,
			Category: cat,
		})
	}
	return out
}

// runeOffsets returns the byte offset of every code point in text followed
// by len(text).
func runeOffsets(text string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}
