package rerank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerank_SingleItemUnderThresholdKept(t *testing.T) {
	passages := []Passage{{SimilarityScore: 0.1, Content: "a"}}
	embed := func(string) ([]float64, error) { return []float64{1, 0}, nil }
	out, err := Rerank(passages, embed, Settings{CosineDistanceIrrelevanceThreshold: 1.0, ScoreMargin: 0.5, SimilarityScoreThreshold: 0.8})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Content)
}

func TestRerank_SingleItemOverThresholdDropped(t *testing.T) {
	passages := []Passage{{SimilarityScore: 1.5, Content: "a"}}
	embed := func(string) ([]float64, error) { return []float64{1, 0}, nil }
	out, err := Rerank(passages, embed, Settings{CosineDistanceIrrelevanceThreshold: 1.0, ScoreMargin: 0.5, SimilarityScoreThreshold: 0.8})
	require.NoError(t, err)
	assert.Empty(t, out)
}

// Mirrors spec.md §8 scenario 6: four passages scoring [0.44, 0.44, 0.47,
// 0.51], irrelevance=1.0, margin=0.2, similarity_threshold=0.8, with the
// first two cosine-similar above threshold. Expect length 3: the
// lower-scoring duplicate kept, its twin dropped, the other two untouched.
func TestRerank_GroupsNearDuplicates(t *testing.T) {
	passages := []Passage{
		{SimilarityScore: 0.44, Content: "dup-a"},
		{SimilarityScore: 0.44, Content: "dup-b"},
		{SimilarityScore: 0.47, Content: "c"},
		{SimilarityScore: 0.51, Content: "d"},
	}
	vectors := map[string][]float64{
		"dup-a": {1, 0, 0},
		"dup-b": {0.99, 0.01, 0},
		"c":     {0, 1, 0},
		"d":     {0, 0, 1},
	}
	embed := func(text string) ([]float64, error) { return vectors[text], nil }

	out, err := Rerank(passages, embed, Settings{
		CosineDistanceIrrelevanceThreshold: 1.0,
		ScoreMargin:                        0.2,
		SimilarityScoreThreshold:           0.8,
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	contents := []string{}
	for _, p := range out {
		contents = append(contents, p.Content)
	}
	assert.NotContains(t, contents, "dup-b")
	assert.Contains(t, contents, "dup-a")
	assert.Contains(t, contents, "c")
	assert.Contains(t, contents, "d")
}

func TestRerank_PreservesInputOrder(t *testing.T) {
	passages := []Passage{
		{SimilarityScore: 0.1, Content: "first"},
		{SimilarityScore: 0.2, Content: "second"},
	}
	vectors := map[string][]float64{"first": {1, 0}, "second": {0, 1}}
	embed := func(text string) ([]float64, error) { return vectors[text], nil }
	out, err := Rerank(passages, embed, Settings{CosineDistanceIrrelevanceThreshold: 1.0, ScoreMargin: 1.0, SimilarityScoreThreshold: 0.99})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Content)
	assert.Equal(t, "second", out[1].Content)
}
