package provider

import (
	"sync"
	"time"

	"github.com/sells-group/profile-enricher/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig(name string) Config {
	return Config{
		Name:       name,
		Kind:       KindHTTP,
		Capability: model.CapabilityConventional,
		Priority:   5,
	}
}

func janeRecord() *model.ExtractedRecord {
	return &model.ExtractedRecord{
		Name:       "Jane Doe",
		Email:      "jane@example.com",
		Confidence: model.FieldConfidence{Name: 90, Email: 90},
	}
}
