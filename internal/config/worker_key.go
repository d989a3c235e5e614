package config

type WorkerKeyStruct struct {
	PersistAnswersQueue     string
	PersistSubmissionsQueue string
	PersistProctoringQueue  string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:     "persist_answers_queue",
	PersistSubmissionsQueue: "persist_submissions_queue",
	PersistProctoringQueue:  "persist_proctoring_queue",
}
