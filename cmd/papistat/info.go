// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"gopkg.in/yaml.v3"

	"github.com/aclements/go-papi/papi"
)

type infoReport struct {
	Hardware   papi.HardwareInfo    `yaml:"hardware"`
	Components []papi.ComponentInfo `yaml:"components"`
	Memory     papi.DmemInfo        `yaml:"memory"`
	Executable papi.ExecutableInfo  `yaml:"executable"`
}

func (c *command) info(lib *papi.Library) error {
	var r infoReport
	var err error
	if r.Hardware, err = lib.GetHardwareInfo(); err != nil {
		return err
	}
	n, err := lib.NumComponents()
	if err != nil {
		return err
	}
	for i := range n {
		ci, err := lib.GetComponentInfo(i)
		if err != nil {
			return err
		}
		r.Components = append(r.Components, ci)
	}
	if r.Memory, err = lib.GetDmemInfo(); err != nil {
		return err
	}
	if r.Executable, err = lib.GetExecutableInfo(); err != nil {
		return err
	}

	enc := yaml.NewEncoder(c.out)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}
