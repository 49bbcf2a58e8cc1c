// Package labels maps class indices reported by the remote models to the
// species names used during training.
package labels

import "strconv"

// Label is one row of the class table.
type Label struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// table is indexed by class; it must stay contiguous from 0 and duplicate-free.
var table = [...]string{ //nolint:gochecknoglobals // fixed training mapping
	"animal fish bass",
	"fish sea_food trout",
	"fish sea_food striped_red_mullet",
	"fish sea_food shrimp",
	"fish sea_food red_mullet",
	"fish sea_food red_sea_bream",
	"fish sea_food gilt_head_bream",
	"animal fish",
	"fish sea_food black_sea_sprat",
	"fish sea_food hourse_mackerel",
	"fish sea_food sea_bass",
}

// Count returns the number of known classes.
func Count() int { return len(table) }

// Resolve returns the label for index, or "Class-<index>" when the index is
// outside the table (including the -1 sentinel).
func Resolve(index int) string {
	if index >= 0 && index < len(table) {
		return table[index]
	}
	return "Class-" + strconv.Itoa(index)
}

// All returns a copy of the table in index order.
func All() []Label {
	out := make([]Label, len(table))
	for i, name := range table {
		out[i] = Label{Index: i, Name: name}
	}
	return out
}
