// Package tabular flattens row-oriented inputs into Feishu records, keeping
// the client agnostic of the input's concrete representation. Each supported
// input type implements Source once; CSVSource covers CSV files.
package tabular

import (
	"github.com/encyc/feishu-table-go/pkg/feishu"
)

// Source yields the rows of a tabular input as records, one record per row,
// with column headers as field names.
type Source interface {
	Records() ([]*feishu.Record, error)
}
