package scan

import (
	"context"
	"fmt"
	"sync"

	"github.com/tableguard/tableguard/pkg/types"
	"go.uber.org/zap"
)

// Runner executes one kind of scan against a warehouse target. Runners must
// be idempotent: the queue and the driver may re-invoke them on retry.
type Runner interface {

	// Run executes the scan and reports its outcome
	Run(ctx context.Context, target types.Target) (*types.ScanResult, error)

	// Type returns the scan type this runner executes
	Type() types.ScanType

	// Description returns a human-readable description of the scan
	Description() string
}

// Registry holds the runner for each scan type.
type Registry struct {
	mu      sync.RWMutex
	runners map[types.ScanType]Runner
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		runners: make(map[types.ScanType]Runner),
		logger:  logger,
	}
}

// Register adds a scan runner to the registry.
func (r *Registry) Register(runner Runner) error {
	if runner == nil {
		return fmt.Errorf("runner cannot be nil")
	}

	scanType := runner.Type()
	if !scanType.Valid() {
		return fmt.Errorf("unknown scan type %q", scanType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runners[scanType]; exists {
		return fmt.Errorf("runner for scan type '%s' already exists", scanType)
	}

	r.runners[scanType] = runner
	r.logger.Info("Registered scan runner",
		zap.String("scan_type", string(scanType)),
		zap.String("description", runner.Description()),
	)

	return nil
}

// Get retrieves the runner for the given scan type.
func (r *Registry) Get(scanType types.ScanType) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runner, exists := r.runners[scanType]
	if !exists {
		return nil, fmt.Errorf("no runner registered for scan type %s", scanType)
	}

	return runner, nil
}

// Execute runs the scan matching scanType against target. A "full" scan
// invokes both the profiling and checks runners and fails if either fails.
func (r *Registry) Execute(ctx context.Context, scanType types.ScanType, target types.Target) (*types.ScanResult, error) {
	if scanType == types.ScanFull {
		profiling, err := r.execute(ctx, types.ScanProfiling, target)
		if err != nil {
			return profiling, err
		}
		checks, err := r.execute(ctx, types.ScanChecks, target)
		if err != nil {
			return checks, err
		}
		return &types.ScanResult{
			Success: true,
			RunID:   profiling.RunID + "," + checks.RunID,
		}, nil
	}

	return r.execute(ctx, scanType, target)
}

func (r *Registry) execute(ctx context.Context, scanType types.ScanType, target types.Target) (*types.ScanResult, error) {
	runner, err := r.Get(scanType)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Executing scan",
		zap.String("scan_type", string(scanType)),
		zap.String("target", target.String()),
	)

	result, err := runner.Run(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%s scan on %s failed: %w", scanType, target, err)
	}
	if result != nil && !result.Success {
		return result, fmt.Errorf("%s scan on %s reported failure: %s", scanType, target, result.Error)
	}

	return result, nil
}

// ListRunners returns a description per registered scan type.
func (r *Registry) ListRunners() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runners := make(map[string]string)
	for t, runner := range r.runners {
		runners[string(t)] = runner.Description()
	}
	return runners
}
