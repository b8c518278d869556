package usecase

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Poetic words for nickname generation
var poetryWords = []string{
	// Scenery
	"明月", "清风", "松涛", "荷香", "流泉", "晚霞", "孤雁", "残雪",

	// Moods
	"相思", "莫愁", "悠然", "欣然", "浩然", "知远", "念远",

	// Places
	"客舟", "孤帆", "古寺", "寒窗", "东篱", "西楼", "南浦",

	// Pastimes
	"听竹", "观云", "望岳", "踏雪", "寻梅", "垂钓", "醉眠",
}

// NicknameGenerator produces throwaway display names: one or two distinct
// words from a fixed vocabulary. Names are not guaranteed unique.
type NicknameGenerator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	words []string
}

// NewNicknameGenerator creates a generator over words, or over the built-in
// vocabulary when none are given.
func NewNicknameGenerator(words ...string) *NicknameGenerator {
	if len(words) == 0 {
		words = poetryWords
	}
	return &NicknameGenerator{
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		words: words,
	}
}

// Generate returns a fresh nickname
func (g *NicknameGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 1 + g.rng.Intn(2)
	if n > len(g.words) {
		n = len(g.words)
	}

	// Draw without replacement
	picks := g.rng.Perm(len(g.words))[:n]
	var b strings.Builder
	for _, i := range picks {
		b.WriteString(g.words[i])
	}
	return b.String()
}
