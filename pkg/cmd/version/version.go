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

package version

import (
	"github.com/pingcap/stepflow/pkg/version"
	"github.com/spf13/cobra"
)

// options defines flags for the `version` command.
type options struct {
	short bool
}

// newOptions creates new options for the `version` command.
func newOptions() *options {
	return &options{}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to the version to it.
func (o *options) addFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.short, "short", false, "print the semantic version only")
}

func (o *options) run(cmd *cobra.Command) {
	if o.short {
		v := version.ReleaseSemver()
		if v == "" {
			v = version.ReleaseVersion
		}
		cmd.Println(v)
		return
	}
	cmd.Print(version.GetRawInfo())
}

// NewCmdVersion creates the `version` command.
func NewCmdVersion() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:   "version",
		Short: "Output version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			o.run(cmd)
		},
	}
	o.addFlags(command)

	return command
}
