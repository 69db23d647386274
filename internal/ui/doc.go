// Package ui implements a terminal dashboard for a running sync daemon using bubbletea's Elm architecture.
//
// The TUI polls the daemon's JSON API and offers these views:
//  1. [DashboardView] : Engine activity, catalog totals, last scan and the list of playlists
//  2. [TracksView] : Tracks of the selected playlist with their status
//  3. [LogView] : Most recent action log entries
//  4. [ConfirmView] : Confirm a manual scan
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// A ticker refreshes the status every few seconds, so the dashboard follows scans started elsewhere.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, s, y/n, l, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
