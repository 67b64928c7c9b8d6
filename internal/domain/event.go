package domain

const (
	EventNameInterviewCompleted = "interview.completed"
	EventNameResultRecorded     = "result.recorded"
)

type EventInterviewCompleted struct {
	Result Result
}

func (EventInterviewCompleted) Name() string { return EventNameInterviewCompleted }

type EventResultRecorded struct {
	Result Result
}

func (EventResultRecorded) Name() string { return EventNameResultRecorded }
