package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/pkg/textx"
)

const (
	structureHashLen = 16
	jobIDHashLen     = 24
	jobIDPrefix      = "JDHASH-"
)

// JDHash fingerprints job description text after collapsing whitespace.
func JDHash(text string) string {
	sum := sha256.Sum256([]byte(textx.CollapseWhitespace(text)))
	return hex.EncodeToString(sum[:])
}

// JobID derives the stable analysis id of a job description hash.
func JobID(jdHash string) string {
	h := jdHash
	if len(h) > jobIDHashLen {
		h = h[:jobIDHashLen]
	}
	return jobIDPrefix + strings.ToUpper(h)
}

// StructureHash combines the text fingerprint with the resolved weights. It is
// the match cache key: the same text under a different dimension set yields a
// different hash.
func StructureHash(jdHash string, weights domain.Weights) string {
	payload := jdHash + ":" + canonicalWeights(weights)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:structureHashLen]
}

// canonicalWeights renders weights as a key-sorted JSON object,
// e.g. {"a": 50, "b": 50}.
func canonicalWeights(weights domain.Weights) string {
	ids := make([]string, 0, len(weights))
	for id := range weights {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			b.WriteString(", ")
		}
		key, _ := json.Marshal(id)
		b.Write(key)
		b.WriteString(": ")
		b.WriteString(strconv.Itoa(weights[domain.DimensionID(id)]))
	}
	b.WriteByte('}')
	return b.String()
}
