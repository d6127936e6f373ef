// Package ui implements an interactive task monitor using bubbletea's Elm architecture.
//
// The monitor talks to a running server through a [TaskSource] (normally the API client) and offers:
//  1. [TaskListView] : Browse tasks, refreshed on a fixed interval
//  2. [DetailView] : Inspect one task's progress, output, and error
//  3. [SubmitView] : Paste one or more URLs to queue
//  4. [ConfirmView] : Confirm a destructive action (cancel)
//
// The [Model] implements the standard Init/Update/View pattern, receiving results as [Msg] values.
// Keyboard navigation uses vim-style bindings with contextual help from charmbracelet/bubbles/help.
package ui
