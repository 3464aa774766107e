// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// Placeholder labels shown by pickers before a real choice is made.
const (
	PlaceholderModel      = "Select Model"
	PlaceholderCollection = "Select Collection"
	PlaceholderProvider   = "Select Provider"
)

var placeholders = []string{
	PlaceholderModel,
	PlaceholderCollection,
	PlaceholderProvider,
}

// IsPlaceholder reports whether v is empty or one of the picker placeholder
// labels (compared case-insensitively).
func IsPlaceholder(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	for _, p := range placeholders {
		if strings.EqualFold(v, p) {
			return true
		}
	}
	return false
}

// Selection is the model and collection a prompt is answered with.
type Selection struct {
	Model      string `json:"model"`
	Collection string `json:"collection"`
}

// Bound reports whether both fields hold real values.
func (s Selection) Bound() bool {
	return !IsPlaceholder(s.Model) && !IsPlaceholder(s.Collection)
}

// Missing lists the fields that are still placeholders.
func (s Selection) Missing() []string {
	var missing []string
	if IsPlaceholder(s.Model) {
		missing = append(missing, "model")
	}
	if IsPlaceholder(s.Collection) {
		missing = append(missing, "collection")
	}
	return missing
}

// ModelLabel returns the model or its placeholder label.
func (s Selection) ModelLabel() string {
	if IsPlaceholder(s.Model) {
		return PlaceholderModel
	}
	return s.Model
}

// CollectionLabel returns the collection or its placeholder label.
func (s Selection) CollectionLabel() string {
	if IsPlaceholder(s.Collection) {
		return PlaceholderCollection
	}
	return s.Collection
}
