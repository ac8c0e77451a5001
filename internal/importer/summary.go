package importer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
)

// renderSummary produces the human-readable result block stored on the
// job history: totals, skip breakdown, cleanup and catalog counts,
// throughput, and the first errorPreview error lines.
func renderSummary(job domain.ImportJob, res runResult, elapsed time.Duration, errorPreview int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Import %q for supplier %d\n", job.FileName, job.SupplierID)
	fmt.Fprintf(&b, "Rows: %d total, %d created, %d updated, %d skipped, %d errors\n",
		res.Counts.TotalRows, res.Counts.Created, res.Counts.Updated,
		res.Counts.Skipped, res.Counts.Errors)

	if len(res.Counts.SkipReasons) > 0 {
		reasons := make([]string, 0, len(res.Counts.SkipReasons))
		for reason := range res.Counts.SkipReasons {
			reasons = append(reasons, string(reason))
		}
		sort.Strings(reasons)

		parts := make([]string, 0, len(reasons))
		for _, reason := range reasons {
			parts = append(parts, fmt.Sprintf("%s=%d", reason, res.Counts.SkipReasons[domain.SkipReason(reason)]))
		}
		fmt.Fprintf(&b, "Skipped: %s\n", strings.Join(parts, ", "))
	}

	fmt.Fprintf(&b, "Cleanup: %d stale supplier prices removed\n", res.Counts.Removed)
	fmt.Fprintf(&b, "Catalog: %d archived, %d reactivated\n",
		res.Counts.Archived, res.Counts.Reactivated)

	if secs := elapsed.Seconds(); secs > 0 && res.Counts.TotalRows > 0 {
		fmt.Fprintf(&b, "Throughput: %.1f rows/sec in %s\n",
			float64(res.Counts.TotalRows)/secs, elapsed.Round(time.Millisecond))
	}

	writeErrorPreview(&b, res, errorPreview)

	return strings.TrimRight(b.String(), "\n")
}

func writeErrorPreview(b *strings.Builder, res runResult, limit int) {
	if limit <= 0 || res.Partition == nil {
		return
	}

	shown := 0
	total := len(res.Partition.Errors) + len(res.Failures)
	if total == 0 {
		return
	}

	fmt.Fprintf(b, "First errors:\n")
	for _, row := range res.Partition.Errors {
		if shown >= limit {
			break
		}
		fmt.Fprintf(b, "  line %d: no catalog match (barcode=%q, code=%q)\n",
			row.Line, row.Barcode, row.InternalCode)
		shown++
	}
	for _, f := range res.Failures {
		if shown >= limit {
			break
		}
		fmt.Fprintf(b, "  line %d: %s\n", f.Row.Line, f.Detail)
		shown++
	}
	if total > shown {
		fmt.Fprintf(b, "  ... and %d more\n", total-shown)
	}
}
