package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rcliao/convo-memory/internal/codec"
	"github.com/rcliao/convo-memory/internal/model"
)

// DumpVersion is the current export format version.
const DumpVersion = 1

// Dump is the export document.
type Dump struct {
	Version    int                    `json:"version"`
	ExportedAt time.Time              `json:"exported_at"`
	Memories   []model.MemoryRecord   `json:"memories"`
	Summaries  []model.SessionSummary `json:"summaries"`
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	Memories  int `json:"memories"`
	Summaries int `json:"summaries"`
}

// Export writes every memory and summary to w as JSON.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	mems, err := s.store.ListAll(ctx)
	if err != nil {
		return err
	}
	sums, err := s.store.ListSummaries(ctx)
	if err != nil {
		return err
	}
	return codec.Encode(w, Dump{
		Version:    DumpVersion,
		ExportedAt: time.Now().UTC(),
		Memories:   mems,
		Summaries:  sums,
	})
}

// Import reads an export document from r and writes its contents, replacing
// records and summaries with the same ids. The topic index is rebuilt
// afterwards, also when the import stops partway.
func (s *Service) Import(ctx context.Context, r io.Reader) (res *ImportResult, err error) {
	var d Dump
	if err := codec.Decode(r, &d); err != nil {
		return nil, model.Invalid("decode import: %v", err)
	}
	if d.Version != DumpVersion {
		return nil, model.Invalid("unsupported export version %d", d.Version)
	}

	res = &ImportResult{}
	defer func() {
		if rerr := s.repair.Rebuild(ctx); rerr != nil && err == nil {
			err = rerr
		}
	}()

	for _, rec := range d.Memories {
		rec.Topics = model.NormalizeTopics(rec.Topics)
		if err := s.store.Put(ctx, rec); err != nil {
			return res, fmt.Errorf("import memory %s: %w", rec.ID, err)
		}
		res.Memories++
	}
	for _, sum := range d.Summaries {
		if err := s.summaries.Restore(ctx, sum); err != nil {
			return res, fmt.Errorf("import summary %s: %w", sum.SessionID, err)
		}
		res.Summaries++
	}
	s.log.WithField("memories", res.Memories).WithField("summaries", res.Summaries).Info("import complete")
	return res, nil
}
