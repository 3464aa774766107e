// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides reusable UI components for the ragchat TUI.

# Picker (picker.go)

A searchable single-choice list used for the model, collection, history and
template pickers. Search is a case-insensitive substring match (match.go).
A picker with no items shows its EmptyText ("No model available"); a query
that matches nothing shows "No results".

	p := components.NewPicker("Model", "No model available")
	p.SetItems(components.Items(models))
	switch p.HandleKey(keyMsg) {
	case components.PickerChosen:
		item, _ := p.Selected()
	}

# Toasts (toast.go)

Non-blocking notifications fed from notify.Hub. Toasts stack newest first and
auto-dismiss; ToastTickCmd drives expiry.
*/
package components
