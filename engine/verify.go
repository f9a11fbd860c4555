package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ladzaretti/dbmigrate/migrateerrors"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// Problem kinds reported by [Engine.Verify].
const (
	ProblemUpChanged   = "up sql changed"
	ProblemDownChanged = "down sql changed"
	ProblemMissingFile = "missing on disk"
	ProblemOutOfOrder  = "not a prefix of available versions"
)

// Problem is a single provenance mismatch found by [Engine.Verify].
type Problem struct {
	Version      int
	Kind         string
	LedgerDigest string
	DiskDigest   string
}

// Digest returns a short content digest of a SQL script.
func Digest(sql string) string {
	sum := blake2b.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:6])
}

// Verify compares every ledger record with the scripts on disk.
//
// It never modifies the database. Any problem yields an error matching
// [migrateerrors.ErrDriftDetected], or [migrateerrors.ErrInconsistentState]
// when recorded versions are missing on disk or out of order.
func (e *Engine) Verify(ctx context.Context) ([]Problem, error) {
	records, err := e.ledger.Records(ctx)
	if err != nil {
		return nil, err
	}

	available, err := e.repo.ListVersions()
	if err != nil {
		return nil, err
	}

	var (
		problems     []Problem
		inconsistent bool
	)

	for i, r := range records {
		if i >= len(available) || available[i] != r.Version {
			inconsistent = true

			problems = append(problems, Problem{Version: r.Version, Kind: ProblemOutOfOrder})
		}

		up, err := e.repo.LoadUp(r.Version)
		if errors.Is(err, migrateerrors.ErrFileNotFound) {
			inconsistent = true

			problems = append(problems, Problem{Version: r.Version, Kind: ProblemMissingFile, LedgerDigest: Digest(r.UpSQL)})

			continue
		}

		if err != nil {
			return nil, err
		}

		down, err := e.repo.LoadDown(r.Version)
		if errors.Is(err, migrateerrors.ErrFileNotFound) {
			inconsistent = true

			problems = append(problems, Problem{Version: r.Version, Kind: ProblemMissingFile, LedgerDigest: Digest(r.DownSQL)})

			continue
		}

		if err != nil {
			return nil, err
		}

		if up != r.UpSQL {
			problems = append(problems, Problem{Version: r.Version, Kind: ProblemUpChanged, LedgerDigest: Digest(r.UpSQL), DiskDigest: Digest(up)})
		}

		if down != r.DownSQL {
			problems = append(problems, Problem{Version: r.Version, Kind: ProblemDownChanged, LedgerDigest: Digest(r.DownSQL), DiskDigest: Digest(down)})
		}
	}

	e.log.Debug("Verified ledger", zap.Int("records", len(records)), zap.Int("problems", len(problems)))

	switch {
	case inconsistent:
		return problems, fmt.Errorf("verify: %d problem(s): %w", len(problems), migrateerrors.ErrInconsistentState)
	case len(problems) > 0:
		return problems, fmt.Errorf("verify: %d problem(s): %w", len(problems), migrateerrors.ErrDriftDetected)
	default:
		return nil, nil
	}
}
