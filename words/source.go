package words

import (
	"bufio"
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
)

// FileWordSource reads newline-delimited word lists from disk and mixes
// 90% regular words with 10% "yo" words into each page.
type FileWordSource struct {
	RegularPath string
	YoPath      string

	loadOnce sync.Once
	loadErr  error
	regular  []string
	yo       []string
}

func (s *FileWordSource) NextPage(ctx context.Context, n int) ([]string, error) {
	s.loadOnce.Do(s.load)
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if len(s.regular) == 0 || len(s.yo) == 0 {
		return nil, fmt.Errorf("words: empty word list")
	}

	yoCount := n / 10
	regCount := n - yoCount
	page := make([]string, 0, n)
	for i := 0; i < regCount; i++ {
		page = append(page, s.regular[rand.IntN(len(s.regular))])
	}
	for i := 0; i < yoCount; i++ {
		page = append(page, s.yo[rand.IntN(len(s.yo))])
	}
	rand.Shuffle(len(page), func(i, j int) { page[i], page[j] = page[j], page[i] })
	return page, nil
}

func (s *FileWordSource) load() {
	s.regular, s.loadErr = readLines(s.RegularPath)
	if s.loadErr != nil {
		return
	}
	s.yo, s.loadErr = readLines(s.YoPath)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("words: open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("words: read %s: %w", path, err)
	}
	return lines, nil
}

// StaticWordSource returns a deterministic, repeating sequence built from a
// fixed word list, letting controller tests assert exact word ordering.
type StaticWordSource struct {
	Words []string

	pagesServed int
}

func (s *StaticWordSource) NextPage(ctx context.Context, n int) ([]string, error) {
	if len(s.Words) == 0 {
		return nil, fmt.Errorf("words: static source has no words")
	}
	page := make([]string, n)
	base := s.pagesServed * n
	for i := range page {
		page[i] = s.Words[(base+i)%len(s.Words)]
	}
	s.pagesServed++
	return page, nil
}
