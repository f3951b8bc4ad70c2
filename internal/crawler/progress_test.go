package crawler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"sjsage522/menucrawler/logger"
)

func TestProgressCountsConcurrently(t *testing.T) {
	p := NewProgress(logger.ForComponent("progress-test"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		p.Discovered()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0:
				p.Failed("https://food.test/store/x")
			default:
				p.Processed("https://food.test/store/y")
			}
		}(i)
	}
	p.Skipped()
	wg.Wait()

	c := p.Snapshot()
	assert.Equal(t, 20, c.Discovered)
	assert.Equal(t, 15, c.Processed)
	assert.Equal(t, 5, c.Failed)
	assert.Equal(t, 1, c.Skipped)
	assert.Equal(t, 20, c.Done())
	assert.InDelta(t, 1.0, c.Fraction(), 1e-9)
}

func TestCountsFractionWithoutDiscoveries(t *testing.T) {
	assert.Zero(t, Counts{}.Fraction())
}
