package service

import (
	"github.com/sirupsen/logrus"
)

func jobLogger(taskID, jobID string) *logrus.Entry {
	fields := logrus.Fields{}
	if taskID != "" {
		fields["task_id"] = taskID
	}
	if jobID != "" {
		fields["generation_id"] = jobID
	}
	return logrus.WithFields(fields)
}
