package acronym

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractParenthetical(t *testing.T) {
	g := testSnapshot(t)

	cases := []struct {
		name string
		text string
		want map[string]string
	}{
		{"at text start", "myocardial infarction (MI)", map[string]string{"MI": "myocardial infarction"}},
		{"alias longform", "heart attack (MI) last year", map[string]string{"MI": "myocardial infarction"}},
		{"preceded by words", "Patient has congestive heart failure (CHF).", map[string]string{"CHF": "congestive heart failure"}},
		{"inner spaces", "complete blood count ( CBC ) drawn", map[string]string{"CBC": "complete blood count"}},
		{"unknown longform", "acute kidney injury (AKI)", map[string]string{}},
		{"lowercase acronym", "myocardial infarction (mi)", map[string]string{}},
		{"too long acronym", "myocardial infarction (ABCDEFGHIJK)", map[string]string{}},
		{"several", "myocardial infarction (MI) and complete blood count (CBC)", map[string]string{
			"MI":  "myocardial infarction",
			"CBC": "complete blood count",
		}},
		{"empty", "", map[string]string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractParenthetical(tc.text, g))
		})
	}
}

func TestExtractParenthetical_NilGlossary(t *testing.T) {
	assert.Empty(t, ExtractParenthetical("myocardial infarction (MI)", nil))
}
