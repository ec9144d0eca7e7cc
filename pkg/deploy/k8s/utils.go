package k8s

import (
	"fmt"
	"regexp"
	"strings"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"

	"pdmflow/pkg/constants"
)

// Kubernetes DNS-1123 label: lowercase alphanumerics and '-', alphanumeric at both ends, at most 63 characters
var dns1123LabelRegex = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

const jobNamePrefix = "pdmflow-train-"

// validateK8sName validates a Kubernetes resource name
func validateK8sName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > 63 {
		return fmt.Errorf("name too long (max 63 characters): %s", name)
	}
	if !dns1123LabelRegex.MatchString(name) {
		return fmt.Errorf("invalid name '%s': must consist of lowercase alphanumeric characters or '-', and must start and end with an alphanumeric character", name)
	}
	return nil
}

// JobName returns the Job name of a run
func JobName(runID string) string {
	return jobNamePrefix + strings.ToLower(runID)
}

// IsManagedJob checks if the Job was launched by pdmflow
func IsManagedJob(job *batchv1.Job) bool {
	return job != nil && job.Labels[constants.LabelManagedBy] == constants.ManagedByPdmflow
}

// jobPhase summarizes a Job's status
func jobPhase(job *batchv1.Job) string {
	for _, c := range job.Status.Conditions {
		if c.Status != corev1.ConditionTrue {
			continue
		}
		switch c.Type {
		case batchv1.JobComplete:
			return constants.JobPhaseSucceeded
		case batchv1.JobFailed:
			return constants.JobPhaseFailed
		}
	}
	switch {
	case job.Status.Active > 0:
		return constants.JobPhaseRunning
	case job.Status.Succeeded > 0:
		return constants.JobPhaseSucceeded
	default:
		return constants.JobPhasePending
	}
}
