// Package ui implements an interactive terminal dashboard using bubbletea's Elm architecture.
//
// The dashboard edits the local profile and link list through a [tasks.Engine]:
//  1. [DashboardView] : Profile card, connection state and the link list
//  2. [AddLinkView] : Title and URL form for a new link
//  3. [EditProfileView] : Name, bio and avatar form
//  4. [ConfirmDeleteView] : Confirm removing the selected link
//  5. [ConnectView] : Authorization URL while waiting for the signer to approve
//
// The (view) [Model] polls [tasks.Engine.Snapshot] on a timer and also listens on the engine's
// event channel so pushes and pulls show up without waiting for the next tick.
//
// Engine calls that reach the network run as [tea.Cmd]s and report back through the Msg union type.
package ui
