package constants

// K8s label keys
const (
	LabelApp        = "app"        // always AppName
	LabelManagedBy  = "managed-by" // Manager identifier
	LabelComponent  = "component"  // Component type
	LabelRunID      = "pdmflow/run-id"
	LabelExperiment = "pdmflow/experiment"
	LabelJobName    = "job-name" // set by the Job controller on its pods

	AppName          = "pdmflow"
	ManagedByPdmflow = "pdmflow"
	ComponentTrain   = "train"
)

// Job phases reported by the launcher
const (
	JobPhasePending   = "Pending"
	JobPhaseRunning   = "Running"
	JobPhaseSucceeded = "Succeeded"
	JobPhaseFailed    = "Failed"
)
