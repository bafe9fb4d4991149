package tui

import (
	"fmt"

	"github.com/kingrea/compass/internal/values"
)

// valueItem implements list.Item for the selection screen.
type valueItem struct {
	value    values.Value
	selected bool
}

func (i valueItem) Title() string {
	mark := "[ ]"
	if i.selected {
		mark = "[x]"
	}
	return fmt.Sprintf("%s %s", mark, i.value.Name)
}

func (i valueItem) Description() string { return i.value.Description }

func (i valueItem) FilterValue() string { return i.value.Name }
