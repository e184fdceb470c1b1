package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships aggregated log entries somewhere outside the process.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type AggregatorConfig struct {
	FlushInterval  time.Duration // periodic flush (e.g. 30s)
	CountThreshold int           // distinct entries that force a flush
	Topic          string
	Publisher      Publisher
}

// AggregatedEntry is one distinct warn/error log line and how often it fired.
type AggregatedEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// Aggregator folds repeated warn/error logs (a source failing every iteration,
// the same malformed entry on every fetch) into counted entries and publishes
// them in batches.
type Aggregator struct {
	cfg     *AggregatorConfig
	mu      sync.Mutex
	entries map[string]*AggregatedEntry
	order   []string
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func NewAggregator(cfg *AggregatorConfig) *Aggregator {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}
	a := &Aggregator{
		cfg:     cfg,
		entries: make(map[string]*AggregatedEntry),
		stop:    make(chan struct{}),
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

// Add records one log occurrence.
func (a *Aggregator) Add(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	a.mu.Lock()
	if e, ok := a.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		a.entries[key] = &AggregatedEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
		a.order = append(a.order, key)
	}
	var batch []AggregatedEntry
	if len(a.entries) >= a.cfg.CountThreshold {
		batch = a.drainLocked()
	}
	a.mu.Unlock()

	if batch != nil {
		a.publish(batch)
	}
}

// Flush publishes whatever has been aggregated so far.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	batch := a.drainLocked()
	a.mu.Unlock()
	if batch != nil {
		a.publish(batch)
	}
}

// Close stops the flush loop after a final flush.
func (a *Aggregator) Close() {
	a.once.Do(func() {
		close(a.stop)
		a.wg.Wait()
	})
}

func (a *Aggregator) loop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.Flush()
		case <-a.stop:
			a.Flush()
			return
		}
	}
}

func (a *Aggregator) drainLocked() []AggregatedEntry {
	if len(a.entries) == 0 {
		return nil
	}
	batch := make([]AggregatedEntry, 0, len(a.order))
	for _, k := range a.order {
		batch = append(batch, *a.entries[k])
	}
	a.entries = make(map[string]*AggregatedEntry)
	a.order = a.order[:0]
	return batch
}

func (a *Aggregator) publish(batch []AggregatedEntry) {
	if a.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.cfg.Publisher.PublishMessage(ctx, a.cfg.Topic, batch); err != nil {
		// the logger itself is the thing failing here; stderr is the last resort
		fmt.Fprintf(os.Stderr, "publish aggregated logs: %v\n", err)
	}
}

func entryKey(level, message string, fields map[string]interface{}, caller string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([][2]interface{}, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, [2]interface{}{k, fields[k]})
	}
	b, _ := json.Marshal([]interface{}{level, message, ordered, caller})
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%x", sum)
}
