// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// vd6g boots the sensor, streams and exposes runtime controls over HTTP.
//
// The tuning file is applied at startup and each time it changes.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/golang/glog"
	"github.com/maruel/go-vd6g/cmd/internal/sensorcfg"
	"github.com/maruel/go-vd6g/vd6g"
	"github.com/maruel/go-vd6g/vd6g/vd6gtest"
	"github.com/maruel/interrupt"
	"periph.io/x/periph/conn"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

func openSensor(fake bool, i2cName, pinName string) (*vd6g.Bus, func(), error) {
	if fake {
		return vd6g.NewBus(vd6gtest.New(), nil), func() {}, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	bus, err := i2creg.Open(i2cName)
	if err != nil {
		return nil, nil, err
	}
	var pin gpio.PinOut
	if pinName != "" {
		p := gpioreg.ByName(pinName)
		if p == nil {
			bus.Close()
			return nil, nil, fmt.Errorf("unknown pin %q", pinName)
		}
		pin = p
	}
	var c conn.Conn = &i2c.Dev{Bus: bus, Addr: vd6g.I2CAddr}
	return vd6g.NewBus(c, pin), func() { bus.Close() }, nil
}

func loadTuning(c *controller, path string) error {
	t, err := sensorcfg.ReadTuning(path)
	if err != nil {
		return err
	}
	return c.apply(t)
}

func mainImpl() error {
	cpuprofile := flag.String("cpuprofile", "", "dump CPU profile in file")
	config := flag.String("config", "", "sensor configuration file")
	tuning := flag.String("tuning", "", "tuning file to apply and watch")
	port := flag.Int("port", 8010, "http port to listen on")
	i2cName := flag.String("i2c", "", "I²C bus to use")
	pinName := flag.String("pin", "", "GPIO connected to XSHUTDOWN")
	fake := flag.Bool("fake", false, "use a fake sensor")
	flag.Parse()
	defer glog.Flush()

	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	interrupt.HandleCtrlC()

	f, err := sensorcfg.Read(*config)
	if err != nil {
		return err
	}
	var fw *vd6g.Firmware
	if *fake && f.Firmware == "" {
		v, err := vd6g.ParseVariant(f.Variant)
		if err != nil {
			return err
		}
		fw = vd6gtest.Firmware(v)
	}
	cfg, err := f.Config(fw)
	if err != nil {
		return err
	}

	b, closeBus, err := openSensor(*fake, *i2cName, *pinName)
	if err != nil {
		return err
	}
	defer closeBus()
	defer b.Close()
	c := &controller{dev: vd6g.New(b, nil)}
	if err := c.dev.Init(cfg); err != nil {
		return err
	}
	defer c.release()
	if *tuning != "" {
		if err := loadTuning(c, *tuning); err != nil {
			return err
		}
	}
	if err := c.dev.Start(); err != nil {
		return err
	}
	glog.Infof("%s streaming", c.dev)

	s := newWebServer(c)
	s.Start(*port)

	if *tuning != "" {
		go func() {
			if err := watchFile(*tuning, func() error { return loadTuning(c, *tuning) }); err != nil {
				glog.Errorf("watching %s: %v", *tuning, err)
			}
		}()
	}

	for !interrupt.IsSet() {
		snap, err := c.snapshot()
		if err != nil {
			glog.Errorf("status: %v", err)
		} else {
			s.Update(snap)
			fmt.Printf("\r%s %s exposure %s gain %d/0x%04X error 0x%04X", snap.State, snap.FSM, snap.Exposure, snap.AnalogGain, snap.DigitalGain, snap.SystemError)
		}
		select {
		case <-interrupt.Channel:
		case <-time.After(time.Second):
		}
	}
	fmt.Print("\n")
	return c.release()
}

func main() {
	if err := mainImpl(); err != nil {
		glog.Flush()
		fmt.Fprintf(os.Stderr, "\nvd6g: %s.\n", err)
		os.Exit(1)
	}
}
