// Package words implements the word provider: an indefinite, page-fed
// stream of words shared by every local player in a session.
package words

import "context"

// PageSize is the fixed batch size the provider fetches from its source.
const PageSize = 100

// Source yields lazy pages of words. FileWordSource is the production
// implementation; StaticWordSource gives tests a deterministic sequence.
type Source interface {
	NextPage(ctx context.Context, n int) ([]string, error)
}

// Provider accumulates words fetched from a Source into a never-shrinking
// list, and hands out freshly revealed words one at a time via NextWord.
// It is not safe for concurrent use; callers serialize access the same way
// the owning game controller serializes everything else.
type Provider struct {
	source Source
	words  []string
	queue  []string
}

// NewProvider wraps a page source. No I/O happens until Words,
// EnsureLength or NextWord is first called.
func NewProvider(source Source) *Provider {
	return &Provider{source: source}
}

// Words returns the full list of words accumulated so far, extending it by
// one page first if nothing has been fetched yet. The returned slice is
// shared and append-only; callers must not mutate it.
func (p *Provider) Words(ctx context.Context) ([]string, error) {
	if len(p.words) == 0 {
		if err := p.extend(ctx, false); err != nil {
			return nil, err
		}
	}
	return p.words, nil
}

// EnsureLength extends the accumulated list until it holds at least n
// words, without touching the NextWord queue.
func (p *Provider) EnsureLength(ctx context.Context, n int) error {
	for len(p.words) < n {
		if err := p.extend(ctx, false); err != nil {
			return err
		}
	}
	return nil
}

// NextWord returns the next word from the shared "new word" cursor,
// extending the list (and refilling the cursor from the fresh page) when
// exhausted.
func (p *Provider) NextWord(ctx context.Context) (string, error) {
	if len(p.queue) == 0 {
		if err := p.extend(ctx, true); err != nil {
			return "", err
		}
	}
	w := p.queue[0]
	p.queue = p.queue[1:]
	return w, nil
}

func (p *Provider) extend(ctx context.Context, refillQueue bool) error {
	page, err := p.source.NextPage(ctx, PageSize)
	if err != nil {
		return err
	}
	p.words = append(p.words, page...)
	if refillQueue {
		p.queue = append(p.queue, page...)
	}
	return nil
}
