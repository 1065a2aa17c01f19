package scoreboardservice

import "errors"

// Precondition errors. These are returned before any state mutation or remote
// call and are safe to show to the user.
var (
	// ErrNotEditor indicates the current user is not the game's host.
	ErrNotEditor = errors.New("only the game host can edit this scoreboard")

	// ErrGameCompleted indicates the game no longer accepts edits.
	ErrGameCompleted = errors.New("game is already completed")

	// ErrRoundLimitReached indicates the round count is already at the game's maximum.
	ErrRoundLimitReached = errors.New("round limit reached")

	// ErrLastRound indicates a game cannot drop below one round.
	ErrLastRound = errors.New("a game needs at least one round")

	// ErrRoundOutOfRange indicates a round number outside 1..roundCount.
	ErrRoundOutOfRange = errors.New("round number out of range")

	// ErrUnknownPlayer indicates the player is not part of the game.
	ErrUnknownPlayer = errors.New("player is not part of this game")

	// ErrChildPlayer indicates the player mirrors a parent and has no scores of its own.
	ErrChildPlayer = errors.New("player scores are mirrored from a team parent")

	// ErrNotRenamable indicates a guest or registered identity, which cannot be renamed.
	ErrNotRenamable = errors.New("only anonymous players can be renamed")

	// ErrEmptyName indicates a blank rename target.
	ErrEmptyName = errors.New("player name cannot be empty")

	// ErrDuplicatePlayer indicates the rename target already exists in the game.
	ErrDuplicatePlayer = errors.New("a player with that name already exists")

	// ErrInvalidHierarchy indicates a parent that is also a child, or a child
	// listed under more than one parent.
	ErrInvalidHierarchy = errors.New("invalid team hierarchy")

	// ErrInvalidScore indicates a score token that is neither an integer nor a custom rule letter.
	ErrInvalidScore = errors.New("invalid score")

	// ErrNotComplete indicates winner resolution was requested before every score was entered.
	ErrNotComplete = errors.New("game scoring is not complete")

	// ErrNotLoaded indicates the session has not been refreshed yet.
	ErrNotLoaded = errors.New("scoreboard has not been loaded")
)

// Remote and consistency conditions.
var (
	// ErrGameGone indicates the game no longer exists remotely. Local state has
	// been cleared and the caller should leave the scoreboard.
	ErrGameGone = errors.New("game no longer exists")

	// ErrRefreshTimeout indicates a refresh was abandoned; prior state is untouched.
	ErrRefreshTimeout = errors.New("refresh timed out")

	// ErrStoreUnavailable indicates the record store could not be reached and
	// nothing was mutated.
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrPartialSave indicates some record operations failed while others succeeded.
	ErrPartialSave = errors.New("some scores could not be saved")
)

// Errors reported by RecordStore implementations.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates the store rejected a write because of a key or
	// uniqueness constraint.
	ErrConflict = errors.New("record conflicts with an existing key")
)

// IsPrecondition reports whether err is a user-facing precondition violation.
func IsPrecondition(err error) bool {
	for _, target := range []error{
		ErrNotEditor, ErrGameCompleted, ErrRoundLimitReached, ErrLastRound,
		ErrRoundOutOfRange, ErrUnknownPlayer, ErrChildPlayer, ErrNotRenamable,
		ErrEmptyName, ErrDuplicatePlayer, ErrInvalidHierarchy, ErrInvalidScore, ErrNotComplete,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
