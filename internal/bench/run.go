// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bench

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/detection"
	"github.com/ZaparooProject/go-nci/platform"
	"github.com/ZaparooProject/go-nci/results"
)

// RunOptions configures RunSuite.
type RunOptions struct {
	Config *nci.Config
	Out    io.Writer
	// Runner executes svc and service calls. It is only used when the
	// configuration asks for the NFC service to be managed.
	Runner platform.Runner
	// NewHAL defaults to the package NewHAL.
	NewHAL   func(*nci.Config, platform.Runner) (nci.HAL, error)
	CrashDir string
}

func (o *RunOptions) vendorRunner() platform.Runner {
	if o.Config.Service.Manage {
		return o.Runner
	}
	return nil
}

// ManageService stops the NFC service when cfg asks for it. The returned
// func starts it again and is never nil on success.
func ManageService(ctx context.Context, cfg *nci.Config, r platform.Runner) (func(), error) {
	if !cfg.Service.Manage {
		return func() {}, nil
	}
	svc := platform.NewServiceController(r)
	svc.DisableSettle = cfg.Service.DisableSettle
	svc.EnableSettle = cfg.Service.EnableSettle
	if err := svc.Disable(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := svc.Enable(context.WithoutCancel(ctx)); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to restart the NFC service: %v\n", err)
		}
	}, nil
}

// SaveReport stores rep in the bbolt database at path.
func SaveReport(path string, rep *nci.Report) error {
	store, err := results.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Save(rep); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// RunSuite resolves and opens the configured controller, runs su over it and
// files the report. The returned report is nil only when the suite never
// started.
func RunSuite(ctx context.Context, su nci.Suite, o RunOptions) (*nci.Report, error) {
	cfg := o.Config
	out := o.Out
	if out == nil {
		out = os.Stdout
	}
	newHAL := o.NewHAL
	if newHAL == nil {
		newHAL = NewHAL
	}

	if _, err := Resolve(ctx, cfg, detection.DefaultOptions()); err != nil {
		return nil, err
	}
	h, err := newHAL(cfg, o.vendorRunner())
	if err != nil {
		return nil, err
	}
	restore, err := ManageService(ctx, cfg, o.Runner)
	if err != nil {
		return nil, err
	}
	defer restore()

	s := nci.NewSession(h, cfg.SessionOptions()...)
	rep := nci.NewRunner(s,
		nci.WithOutput(out),
		nci.WithFilter(cfg.Suite.Filter),
		nci.WithDisabled(cfg.Suite.IncludeDisabled),
		nci.WithRepeat(cfg.Suite.Repeat),
	).Run(ctx, su)
	if s.IsOpen() {
		_ = s.Close(context.WithoutCancel(ctx), su.CloseType)
	}

	if o.CrashDir != "" {
		for _, cr := range CrashReports(rep, s.Trace().Entries()) {
			path, err := WriteCrashReport(o.CrashDir, cr)
			if err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Failed to write crash report: %v\n", err)
				continue
			}
			_, _ = fmt.Fprintf(out, "Crash report: %s\n", path)
		}
	}
	if cfg.Results.Path != "" {
		if err := SaveReport(cfg.Results.Path, rep); err != nil {
			return rep, err
		}
		_, _ = fmt.Fprintf(out, "Report %s stored in %s\n", rep.ID, cfg.Results.Path)
	}
	return rep, nil
}
