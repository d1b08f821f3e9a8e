// Package version provides build and version information.
package version

// Version is the current application version.
// Update this at logical milestones.
const Version = "0.3.0"

// Repo is the GitHub repository releases are published from.
const Repo = "litescript/ls-torrent-deck"

// Milestones:
// 0.1.0 - Add flow, filters, confirm dialogs on the qBittorrent backend
// 0.2.0 - Embedded anacrolix engine with persisted jobs
// 0.3.0 - Help overlay, list subcommand, live theme reload
// 1.0.0 - (planned) Feature-complete public release
