package domain

// Status is a task workflow state.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusDone       Status = "done"
)

// Valid reports whether s is a known workflow state.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusInReview, StatusDone:
		return true
	}
	return false
}

// Transition is an (old, new) status pair from a committed task update.
type Transition struct {
	From Status
	To   Status
}

// Important classifies a transition for email-worthiness. Every pair is
// classified explicitly; a pair involving an unknown status is never
// important.
func (t Transition) Important() bool {
	switch t {
	// Entering or leaving done always matters.
	case Transition{StatusTodo, StatusDone},
		Transition{StatusInProgress, StatusDone},
		Transition{StatusInReview, StatusDone},
		Transition{StatusDone, StatusTodo},
		Transition{StatusDone, StatusInProgress},
		Transition{StatusDone, StatusInReview}:
		return true

	// Work submitted for review.
	case Transition{StatusInProgress, StatusInReview}:
		return true

	// Routine movement between non-terminal states.
	case Transition{StatusTodo, StatusInProgress},
		Transition{StatusTodo, StatusInReview},
		Transition{StatusInProgress, StatusTodo},
		Transition{StatusInReview, StatusTodo},
		Transition{StatusInReview, StatusInProgress}:
		return false
	}
	return false
}
