// Package ui implements the job watcher, an interactive terminal interface using bubbletea's Elm architecture.
//
// The watcher has three views:
//  1. [JobListView] : Browse jobs, refreshed from the API on a timer
//  2. [LogView] : Follow one job's log stream and progress over a websocket
//  3. [ConfirmView] : Confirm cancelling the selected job
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the
// Msg union type. Stream lines arrive through a [stream.Client]; the model waits on its update signal so a slow
// or disconnected server never blocks rendering. The connection state is shown separately from the lines, so
// "connected, nothing logged yet" looks different from "not connected".
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, c, y/n, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
