package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"StoryToVideo-client/models"
)

// tableColumn 表头与对齐；status 为 true 的列按阶段状态加标记
type tableColumn struct {
	Header string
	Align  text.Align
	Status bool
}

var stageColumns = []tableColumn{
	{Header: "Stage", Align: text.AlignLeft},
	{Header: "Status", Align: text.AlignLeft, Status: true},
	{Header: "Artifacts", Align: text.AlignRight},
	{Header: "Run", Align: text.AlignCenter},
	{Header: "Regenerate", Align: text.AlignCenter},
}

var statusMarks = map[models.StageStatus]string{
	models.StageNotStarted: "·",
	models.StageInFlight:   "…",
	models.StageCompleted:  "✓",
	models.StageFailed:     "✗",
}

// renderTable 表头由 StyleRounded 转为大写；footer 为空时不输出表尾
func renderTable(columns []tableColumn, rows [][]string, footer []string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(fill(len(columns), headers(columns)))
	for _, row := range rows {
		tw.AppendRow(fill(len(columns), row))
	}
	if len(footer) > 0 {
		tw.AppendFooter(fill(len(columns), footer))
	}

	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, c := range columns {
		cfg := table.ColumnConfig{
			Number:      i + 1,
			Align:       c.Align,
			AlignHeader: text.AlignLeft,
			AlignFooter: c.Align,
		}
		if c.Status {
			cfg.Transformer = markStatus
		}
		configs = append(configs, cfg)
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func markStatus(val interface{}) string {
	s, _ := val.(string)
	if mark, ok := statusMarks[models.StageStatus(s)]; ok {
		return mark + " " + s
	}
	return s
}

func headers(columns []tableColumn) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.Header
	}
	return out
}

// fill 补齐或截断到列数
func fill(columns int, cells []string) table.Row {
	row := make(table.Row, columns)
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		} else {
			row[i] = ""
		}
	}
	return row
}
