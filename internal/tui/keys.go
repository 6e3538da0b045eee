package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Submit    key.Binding
	AddImages key.Binding
	Clear     key.Binding
	Edit      key.Binding
	Condition key.Binding
	Rescan    key.Binding
	Metal     key.Binding
	Purity    key.Binding
	Weight    key.Binding
	Retry     key.Binding
	Override  key.Binding
	Sell      key.Binding
	Donate    key.Binding
	Another   key.Binding
	Quit      key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Submit:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "continue")),
		AddImages: key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "add photos")),
		Clear:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear photos")),
		Edit:      key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit detail")),
		Condition: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "condition")),
		Rescan:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
		Metal:     key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "metal")),
		Purity:    key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "purity")),
		Weight:    key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "weight")),
		Retry:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry")),
		Override:  key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "enter price")),
		Sell:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sell")),
		Donate:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "donate")),
		Another:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "scan another")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}
