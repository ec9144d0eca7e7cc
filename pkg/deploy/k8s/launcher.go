package k8s

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"pdmflow/pkg/config"
	"pdmflow/pkg/constants"
	"pdmflow/pkg/logger"
)

const (
	containerName         = "train"
	defaultTTLAfterFinish = int32(24 * 60 * 60)
	maxLogBytes           = 1024 * 1024
)

// ErrJobNotFound returned when a Job does not exist
var ErrJobNotFound = errors.New("job not found")

// LaunchRequest runs `pdmflow train` for an existing run inside the cluster
type LaunchRequest struct {
	RunID      string
	Experiment string
	ConfigPath string            // config path inside the container, optional
	Env        map[string]string // extra environment variables
	Timeout    time.Duration     // Job active deadline, 0 = none
}

// JobInfo launched Job status
type JobInfo struct {
	Name           string     `json:"name"`
	Namespace      string     `json:"namespace"`
	RunID          string     `json:"run_id"`
	Experiment     string     `json:"experiment"`
	Phase          string     `json:"phase"`
	Active         int32      `json:"active"`
	Succeeded      int32      `json:"succeeded"`
	Failed         int32      `json:"failed"`
	CreatedAt      time.Time  `json:"created_at"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
}

// JobLauncher runs pipeline components as Kubernetes Jobs
type JobLauncher struct {
	client    kubernetes.Interface
	namespace string
	image     string
	renderer  *TemplateRenderer
	log       *logger.Logger
}

// NewJobLauncher creates a launcher from in-cluster config, falling back to
// the configured or default kubeconfig
func NewJobLauncher(cfg config.K8sConfig, log *logger.Logger) (*JobLauncher, error) {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		if cfg.Kubeconfig != "" {
			loadingRules.ExplicitPath = cfg.Kubeconfig
		}
		kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})
		restConfig, err = kubeConfig.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to get kubernetes config: %w", err)
		}
	}

	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return NewJobLauncherWithClient(client, cfg, log)
}

// NewJobLauncherWithClient creates a launcher around an existing client
func NewJobLauncherWithClient(client kubernetes.Interface, cfg config.K8sConfig, log *logger.Logger) (*JobLauncher, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("k8s.image is required to launch jobs")
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = config.DefaultNamespace
	}
	return &JobLauncher{
		client:    client,
		namespace: namespace,
		image:     cfg.Image,
		renderer:  NewTemplateRenderer(cfg.JobTemplate),
		log:       log,
	}, nil
}

// Render builds the Job manifest for req without creating it
func (l *JobLauncher) Render(req *LaunchRequest) (string, error) {
	name := JobName(req.RunID)
	if err := validateK8sName(name); err != nil {
		return "", err
	}

	command := []string{"pdmflow", "train", "--run-id", req.RunID}
	if req.ConfigPath != "" {
		command = append(command, "--config", req.ConfigPath)
	}

	rc := &RenderContext{
		Name:          name,
		Namespace:     l.namespace,
		Image:         l.image,
		ContainerName: containerName,
		Command:       command,
		Env:           req.Env,
		Labels: map[string]string{
			constants.LabelApp:        constants.AppName,
			constants.LabelManagedBy:  constants.ManagedByPdmflow,
			constants.LabelComponent:  constants.ComponentTrain,
			constants.LabelRunID:      req.RunID,
			constants.LabelExperiment: req.Experiment,
		},
		BackoffLimit:            0,
		TTLSecondsAfterFinished: defaultTTLAfterFinish,
		ActiveDeadlineSeconds:   int64(req.Timeout / time.Second),
	}
	return l.renderer.Render(rc)
}

// Launch creates the Job for req
func (l *JobLauncher) Launch(ctx context.Context, req *LaunchRequest) (*JobInfo, error) {
	manifest, err := l.Render(req)
	if err != nil {
		return nil, err
	}
	job, err := parseJob(manifest)
	if err != nil {
		return nil, err
	}
	job.Namespace = l.namespace

	created, err := l.client.BatchV1().Jobs(l.namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		if apierrors.IsAlreadyExists(err) {
			return nil, fmt.Errorf("job %s already exists: %w", job.Name, err)
		}
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	l.log.InfoCtx(ctx, "Launched job %s/%s for run %s", l.namespace, created.Name, req.RunID)
	return toJobInfo(created), nil
}

// Status returns the status of a Job
func (l *JobLauncher) Status(ctx context.Context, name string) (*JobInfo, error) {
	job, err := l.client.BatchV1().Jobs(l.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return toJobInfo(job), nil
}

// List lists launched Jobs, newest first
func (l *JobLauncher) List(ctx context.Context) ([]*JobInfo, error) {
	selector := labels.SelectorFromSet(labels.Set{
		constants.LabelManagedBy: constants.ManagedByPdmflow,
		constants.LabelComponent: constants.ComponentTrain,
	})
	jobs, err := l.client.BatchV1().Jobs(l.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	infos := make([]*JobInfo, 0, len(jobs.Items))
	for i := range jobs.Items {
		infos = append(infos, toJobInfo(&jobs.Items[i]))
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].Name > infos[j].Name
		}
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// Delete removes a Job and its pods. Missing Jobs are ignored.
func (l *JobLauncher) Delete(ctx context.Context, name string) error {
	policy := metav1.DeletePropagationBackground
	err := l.client.BatchV1().Jobs(l.namespace).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &policy})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// Logs returns the tail of the newest pod's log
func (l *JobLauncher) Logs(ctx context.Context, name string, tailLines int64) (string, error) {
	selector := labels.SelectorFromSet(labels.Set{constants.LabelJobName: name})
	pods, err := l.client.CoreV1().Pods(l.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return "", fmt.Errorf("failed to list pods for job: %w", err)
	}
	if len(pods.Items) == 0 {
		return "", fmt.Errorf("no pods found for job %s", name)
	}
	newest := &pods.Items[0]
	for i := range pods.Items {
		if pods.Items[i].CreationTimestamp.After(newest.CreationTimestamp.Time) {
			newest = &pods.Items[i]
		}
	}

	opts := &corev1.PodLogOptions{Container: containerName}
	if tailLines > 0 {
		opts.TailLines = &tailLines
	}
	stream, err := l.client.CoreV1().Pods(l.namespace).GetLogs(newest.Name, opts).Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get pod logs: %w", err)
	}
	defer stream.Close()

	data, err := io.ReadAll(io.LimitReader(stream, maxLogBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read pod logs: %w", err)
	}
	return string(data), nil
}

func toJobInfo(job *batchv1.Job) *JobInfo {
	info := &JobInfo{
		Name:       job.Name,
		Namespace:  job.Namespace,
		RunID:      job.Labels[constants.LabelRunID],
		Experiment: job.Labels[constants.LabelExperiment],
		Phase:      jobPhase(job),
		Active:     job.Status.Active,
		Succeeded:  job.Status.Succeeded,
		Failed:     job.Status.Failed,
		CreatedAt:  job.CreationTimestamp.Time,
	}
	if job.Status.StartTime != nil {
		t := job.Status.StartTime.Time
		info.StartTime = &t
	}
	if job.Status.CompletionTime != nil {
		t := job.Status.CompletionTime.Time
		info.CompletionTime = &t
	}
	return info
}
