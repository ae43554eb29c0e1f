package tasks

import (
	"fmt"
)

// SyncEvent reports a state change of the engine.
//
// Sent to the CLI or UI layer for display when [EngineOpts.Updates] is set.
type SyncEvent struct {
	Phase   Phase  // Operation phase
	Object  string // Remote object involved, if any
	Message string // Human-readable message for display
	Err     error  // Set when the operation failed
}

// Operation phase enumeration
type Phase int

const (
	LoadCache Phase = iota
	PullRemote
	PushRemote
	FullSync
	ImportSocial
	Authenticate
	Disconnect
)

func (p Phase) String() string {
	switch p {
	case LoadCache:
		return "load_cache"
	case PullRemote:
		return "pull_remote"
	case PushRemote:
		return "push_remote"
	case FullSync:
		return "full_sync"
	case ImportSocial:
		return "import_social"
	case Authenticate:
		return "authenticate"
	case Disconnect:
		return "disconnect"
	default:
		return ""
	}
}

func loadCacheEvent(profile, links bool) SyncEvent {
	return SyncEvent{
		Phase:   LoadCache,
		Message: fmt.Sprintf("Loaded local cache (profile: %t, links: %t)", profile, links),
	}
}

func pullEvent(err error) SyncEvent {
	if err != nil {
		return SyncEvent{Phase: PullRemote, Message: fmt.Sprintf("Remote load failed: %v", err), Err: err}
	}
	return SyncEvent{Phase: PullRemote, Message: "Loaded data from homeserver"}
}

func pushEvent(object string, err error) SyncEvent {
	if err != nil {
		return SyncEvent{
			Phase:   PushRemote,
			Object:  object,
			Message: fmt.Sprintf("✗ %s: %v", object, err),
			Err:     err,
		}
	}
	return SyncEvent{Phase: PushRemote, Object: object, Message: fmt.Sprintf("✓ %s saved", object)}
}

func syncEvent(err error) SyncEvent {
	if err != nil {
		return SyncEvent{Phase: FullSync, Message: fmt.Sprintf("Sync failed: %v", err), Err: err}
	}
	return SyncEvent{Phase: FullSync, Message: "Synced to homeserver"}
}

func importEvent(links int) SyncEvent {
	return SyncEvent{
		Phase:   ImportSocial,
		Message: fmt.Sprintf("Imported social profile (%d links)", links),
	}
}

func authEvent(publicKey string, err error) SyncEvent {
	if err != nil {
		return SyncEvent{Phase: Authenticate, Message: fmt.Sprintf("Authentication failed: %v", err), Err: err}
	}
	return SyncEvent{Phase: Authenticate, Message: fmt.Sprintf("Connected as %s", publicKey)}
}

func disconnectEvent() SyncEvent {
	return SyncEvent{Phase: Disconnect, Message: "Disconnected"}
}
