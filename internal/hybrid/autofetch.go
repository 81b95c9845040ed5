package hybrid

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/sync/errgroup"

	"growthrag/internal/models"
	"growthrag/internal/sources"
)

// PaperOutcome records what happened to one autofetch candidate.
type PaperOutcome struct {
	Meta     models.PaperMeta
	Inserted int
	Skipped  string
	Err      error
}

type AutofetchResult struct {
	Inserted   int
	Candidates int
	Batches    []sources.Batch
	Outcomes   []PaperOutcome
	// LockHeld is set when another caller was already autofetching this query.
	LockHeld bool
}

// Autofetch searches every connector for query, then downloads and ingests each
// candidate with a PDF url. Connector and per-paper failures are recorded, not returned.
func (o *Orchestrator) Autofetch(ctx context.Context, query string) AutofetchResult {
	q := TruncateQuery(query, o.opts.MaxQueryChars)
	var res AutofetchResult

	lockName := lockKey(q)
	acquired, err := o.locker.Acquire(ctx, lockName, o.opts.LockTTL)
	if err != nil {
		o.logger.Warn("autofetch lock unavailable, continuing without it", "err", err)
	} else if !acquired {
		o.logger.Info("autofetch already running for this query, skipping")
		res.LockHeld = true
		return res
	} else {
		defer func() {
			if err := o.locker.Release(context.WithoutCancel(ctx), lockName); err != nil {
				o.logger.Warn("release autofetch lock", "err", err)
			}
		}()
	}

	res.Batches = make([]sources.Batch, len(o.connectors))
	var g errgroup.Group
	for i, c := range o.connectors {
		g.Go(func() error {
			res.Batches[i] = sources.Collect(ctx, c, q, o.opts.PerSource)
			return nil
		})
	}
	_ = g.Wait()

	var metas []models.PaperMeta
	for _, b := range res.Batches {
		if b.Failure != nil {
			o.logger.Warn("connector returned no results", "source", b.Source, "err", b.Failure)
			continue
		}
		metas = append(metas, b.Metas...)
	}
	res.Candidates = len(metas)

	for _, meta := range metas {
		out := PaperOutcome{Meta: meta}
		if meta.PDFURL == "" {
			out.Skipped = "missing pdf_url"
			res.Outcomes = append(res.Outcomes, out)
			continue
		}
		n, err := o.ingester.IngestURL(ctx, meta)
		if err != nil {
			out.Err = err
			o.logger.Warn("autofetch paper skipped", "paper_id", meta.PaperID, "source", meta.Source, "err", err)
		}
		out.Inserted = n
		res.Inserted += n
		res.Outcomes = append(res.Outcomes, out)
	}
	o.logger.Info("autofetch finished", "candidates", res.Candidates, "inserted_chunks", res.Inserted)
	return res
}

// lockKey names the autofetch lock for a truncated query.
func lockKey(q string) string {
	sum := sha256.Sum256([]byte(q))
	return hex.EncodeToString(sum[:])
}
