package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"pkt.systems/tcconsole/api"
	"pkt.systems/tcconsole/internal/model"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) (printer, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "":
		format = outputTable
	case outputTable, outputJSON, outputYAML:
	default:
		return printer{}, fmt.Errorf("unknown output format %q (options: table, json, yaml)", format)
	}
	return printer{w: w, format: format}, nil
}

func (p printer) locks(page api.PageResult[api.GlobalLockView]) error {
	if p.format != outputTable {
		return p.encode(page)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "XID\tTRANSACTION\tBRANCH\tTABLE\tPK\tRESOURCE\tCREATED")
	for _, lock := range page.Data {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			lock.XID, lock.TransactionID, lock.BranchID, dash(lock.TableName), dash(lock.PK),
			dash(lock.ResourceID), since(lock.GmtCreate))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return p.footer(page.Total, page.PageNum, page.Pages, page.NextCursor)
}

func (p printer) sessions(page api.PageResult[api.GlobalSessionView]) error {
	if p.format != outputTable {
		return p.encode(page)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "XID\tTRANSACTION\tSTATUS\tAPPLICATION\tNAME\tTIMEOUT\tBEGAN\tBRANCHES")
	for _, sess := range page.Data {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
			sess.XID, sess.TransactionID, globalStatusName(sess.Status), dash(sess.ApplicationID),
			dash(sess.TransactionName), time.Duration(sess.Timeout)*time.Millisecond,
			since(sess.BeginTime), len(sess.BranchSessionVOs))
		for _, branch := range sess.BranchSessionVOs {
			fmt.Fprintf(tw, "  branch %d\t%s\t%s\t%s\t\t\t%s\t\n",
				branch.BranchID, dash(branch.BranchType), branchStatusName(branch.Status),
				dash(branch.ResourceID), sincePtr(branch.GmtCreate))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return p.footer(page.Total, page.PageNum, page.Pages, page.NextCursor)
}

func (p printer) footer(total, pageNum, pages int, next string) error {
	line := fmt.Sprintf("\n%s total", humanize.Comma(int64(total)))
	if pageNum > 0 {
		line += fmt.Sprintf(", page %d of %d", pageNum, pages)
	}
	if next != "" {
		line += ", next cursor " + next
	}
	_, err := fmt.Fprintln(p.w, line)
	return err
}

// encode renders v as JSON, or as YAML with the same field names and order.
func (p printer) encode(v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if p.format == outputJSON {
		_, err = fmt.Fprintf(p.w, "%s\n", body)
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	clearStyle(&doc)
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return enc.Close()
}

// clearStyle drops the flow and quoting styles inherited from the JSON source.
func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, child := range n.Content {
		clearStyle(child)
	}
}

func globalStatusName(code int) string {
	if status, ok := model.GlobalStatusOf(code); ok {
		return status.String()
	}
	return strconv.Itoa(code)
}

func branchStatusName(code int) string {
	if status, ok := model.BranchStatusOf(code); ok {
		return status.String()
	}
	return strconv.Itoa(code)
}

func since(millis int64) string {
	if millis <= 0 {
		return "-"
	}
	return humanize.Time(time.UnixMilli(millis))
}

func sincePtr(millis *int64) string {
	if millis == nil {
		return "-"
	}
	return since(*millis)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
