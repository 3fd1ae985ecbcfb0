// Copyright 2026 PingCAP, Inc.
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

package cmd

import (
	"os"

	"github.com/pingcap/stepflow/pkg/cmd/demo"
	"github.com/pingcap/stepflow/pkg/cmd/monitor"
	"github.com/pingcap/stepflow/pkg/cmd/server"
	"github.com/pingcap/stepflow/pkg/cmd/util"
	"github.com/pingcap/stepflow/pkg/cmd/version"
	"github.com/pingcap/stepflow/pkg/cmd/worker"
	"github.com/spf13/cobra"
)

// NewCmd creates the root command.
func NewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stepflow",
		Short: "Job progress tracking on a distributed step queue",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// AddStepflowCommands adds all the stepflow subcommands to cmd.
func AddStepflowCommands(cmd *cobra.Command) {
	cmd.AddCommand(worker.NewCmdWorker())
	cmd.AddCommand(monitor.NewCmdMonitor())
	cmd.AddCommand(server.NewCmdServer())
	cmd.AddCommand(demo.NewCmdDemo())
	cmd.AddCommand(version.NewCmdVersion())
}

// Run runs the root command.
func Run() {
	cmd := NewCmd()
	cmd.SetOut(os.Stdout)
	AddStepflowCommands(cmd)
	if err := cmd.Execute(); err != nil {
		util.CheckErr(err)
	}
}
