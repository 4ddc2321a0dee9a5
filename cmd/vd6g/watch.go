// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"path/filepath"

	"github.com/golang/glog"
	"github.com/maruel/interrupt"
	fsnotify "gopkg.in/fsnotify.v1"
)

// watchFile calls apply each time fileName is written until the process is
// interrupted. A failed apply is logged and the watch continues.
//
// The directory is watched since editors usually replace the file.
func watchFile(fileName string, apply func() error) error {
	fileName = filepath.Clean(fileName)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err = watcher.Add(filepath.Dir(fileName)); err != nil {
		return err
	}
	for {
		select {
		case <-interrupt.Channel:
			return nil
		case err = <-watcher.Errors:
			return err
		case e := <-watcher.Events:
			if filepath.Clean(e.Name) != fileName || e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			glog.Infof("%s changed", fileName)
			if err := apply(); err != nil {
				glog.Errorf("applying %s: %v", fileName, err)
			}
		}
	}
}
