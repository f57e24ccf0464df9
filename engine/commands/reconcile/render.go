package reconcile

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/smartcontractkit/access-control-sync/chain/evm"
	"github.com/smartcontractkit/access-control-sync/reconciler"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func renderJSON(w io.Writer, report *reconciler.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(report)
}

// renderTable writes a summary of every chain, then the pending changes, submissions, read
// failures and diagnostics of the run. Empty sections are left out.
func renderTable(w io.Writer, report *reconciler.Report) error {
	mode := "dry run"
	if report.Apply {
		mode = "apply"
	}
	readFailures := report.ReadFailures()
	if _, err := fmt.Fprintf(w, "Run %s (%s): %d pending change(s), %d submission(s), %d unreadable role(s)\n\n",
		report.RunID, mode, len(report.PendingChanges()), len(report.Submissions()), len(readFailures)); err != nil {
		return err
	}

	selectors := slices.Sorted(maps.Keys(report.Chains))

	summary := newTable(w, "Chain", "State", "Contracts", "Pending", "Submitted", "Error")
	for _, s := range selectors {
		c := report.Chains[s]
		pending, submitted := 0, 0
		var errMsg string
		if c.Err != nil {
			errMsg = c.Err.Error()
		}
		for _, name := range c.ContractNames() {
			cr := c.Contracts[name]
			pending += len(cr.PendingChanges)
			submitted += len(cr.Submissions)
			if cr.Err != nil && errMsg == "" {
				errMsg = fmt.Sprintf("%s: %v", name, cr.Err)
			}
		}
		summary.Append([]string{
			c.Name, string(c.State), strconv.Itoa(len(c.Contracts)),
			strconv.Itoa(pending), strconv.Itoa(submitted), errMsg,
		})
	}
	summary.Render()

	changes := report.PendingChanges()
	if len(changes) > 0 {
		if _, err := fmt.Fprintln(w, "\nPending changes"); err != nil {
			return err
		}
		t := newTable(w, "Chain", "Contract", "Address", "Role", "Sibling", "Grantee", "Action")
		for _, c := range changes {
			t.Append([]string{
				chainLabel(c.ChainSelector), c.Contract, c.Address.Hex(), c.Role.String(),
				siblingLabel(c.Sibling), c.Grantee.Hex(), c.Status.String(),
			})
		}
		t.Render()
	}

	var submissions [][]string
	for _, s := range selectors {
		c := report.Chains[s]
		for _, name := range c.ContractNames() {
			for _, sub := range c.Contracts[name].Submissions {
				submissions = append(submissions, []string{
					c.Name, name, sub.Description, submissionTx(sub), submissionStatus(sub),
				})
			}
		}
	}
	if len(submissions) > 0 {
		if _, err := fmt.Fprintln(w, "\nSubmissions"); err != nil {
			return err
		}
		t := newTable(w, "Chain", "Contract", "Call", "Tx", "Status")
		t.AppendBulk(submissions)
		t.Render()
	}

	if len(readFailures) > 0 {
		if _, err := fmt.Fprintln(w, "\nUnreadable"); err != nil {
			return err
		}
		t := newTable(w, "Chain", "Contract", "Address", "Role", "Sibling", "Grantee", "Error")
		for _, f := range readFailures {
			o := f.Observation
			t.Append([]string{
				chainLabel(f.ChainSelector), f.Contract, f.Address.Hex(), o.Role.String(),
				siblingLabel(o.Sibling), o.Grantee.Hex(), o.Err.Error(),
			})
		}
		t.Render()
	}

	diagnostics := report.Diagnostics()
	if len(diagnostics) > 0 {
		if _, err := fmt.Fprintln(w, "\nSkipped"); err != nil {
			return err
		}
		t := newTable(w, "Chain", "Contract", "Reason", "Detail")
		for _, s := range slices.Sorted(maps.Keys(diagnostics)) {
			for _, d := range diagnostics[s] {
				t.Append([]string{chainLabel(s), d.Contract, string(d.Kind), d.Message})
			}
		}
		t.Render()
	}

	return nil
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(false)
	t.SetBorders(tablewriter.Border{Left: true, Right: true, Top: false, Bottom: false})

	return t
}

func chainLabel(selector uint64) string {
	if name := (evm.Chain{Selector: selector}).Name(); name != "" {
		return name
	}

	return strconv.FormatUint(selector, 10)
}

func siblingLabel(selector uint64) string {
	if selector == 0 {
		return "-"
	}

	return chainLabel(selector)
}

func submissionTx(s reconciler.Submission) string {
	if s.Proposed {
		return "proposal"
	}

	return s.TxHash.Hex()
}

func submissionStatus(s reconciler.Submission) string {
	switch {
	case s.InFlight:
		return "still pending from an earlier run"
	case s.Err != nil:
		return "failed: " + s.Err.Error()
	case s.Reused:
		return "already submitted"
	case s.Proposed:
		return "proposed"
	default:
		return "confirmed in block " + strconv.FormatUint(s.BlockNumber, 10)
	}
}
