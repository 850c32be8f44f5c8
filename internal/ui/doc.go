// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI has two tabs:
//  1. [DownloadsTab] : Active transfers with progress bars, followed by the downloaded library
//  2. [QueueTab] : The play queue with the now-playing entry highlighted
//
// The [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Coordinator snapshots, notices and confirmation requests flow through channels and are read one at a time by
// waiting commands, so the coordinators never block on the terminal.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
