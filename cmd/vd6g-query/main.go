// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// vd6g-query boots the sensor over I²C and prints its identification and
// timings.
package main

import (
	"flag"
	"fmt"
	"os"
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
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"
)

func mainImpl() error {
	config := flag.String("config", "", "sensor configuration file")
	i2cName := flag.String("i2c", "", "I²C bus to use")
	pinName := flag.String("pin", "", "GPIO connected to XSHUTDOWN")
	fake := flag.Bool("fake", false, "use a fake sensor")
	stream := flag.Bool("stream", false, "stream until Ctrl-C")
	flag.Parse()
	defer glog.Flush()

	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

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

	var c conn.Conn
	var pin gpio.PinOut
	if *fake {
		c = vd6gtest.New()
	} else {
		if _, err := host.Init(); err != nil {
			return err
		}
		bus, err := i2creg.Open(*i2cName)
		if err != nil {
			return err
		}
		defer bus.Close()
		c = &i2c.Dev{Bus: bus, Addr: vd6g.I2CAddr}
		if *pinName != "" {
			p := gpioreg.ByName(*pinName)
			if p == nil {
				return fmt.Errorf("unknown pin %q", *pinName)
			}
			pin = p
		}
	}
	b := vd6g.NewBus(c, pin)
	defer b.Close()
	dev := vd6g.New(b, nil)
	if err := dev.Init(cfg); err != nil {
		return err
	}
	defer dev.DeInit()

	pll, lineLength, frameLength := dev.GetTiming()
	rev := dev.GetPatchRevision()
	fmt.Printf("Sensor:         %s\n", dev)
	fmt.Printf("Patch revision: %d.%d\n", rev>>8, rev&0xFF)
	fmt.Printf("PLL:            %s\n", physic.Frequency(pll)*physic.Hertz)
	fmt.Printf("Line length:    %d\n", lineLength)
	fmt.Printf("Frame length:   %d\n", frameLength)
	fmt.Printf("Bayer:          %s\n", dev.GetBayer())
	fmt.Printf("Capability:     %s\n", dev.GetCapability())
	status, err := dev.ReadStatus()
	if err != nil {
		return err
	}
	fmt.Printf("FSM:            %s\n", status.FSM)
	fmt.Printf("System error:   0x%04X\n", status.SystemError)
	if !*stream {
		return nil
	}

	interrupt.HandleCtrlC()
	if err := dev.Start(); err != nil {
		return err
	}
	fmt.Printf("Streaming; press Ctrl-C to stop\n")
	for !interrupt.IsSet() {
		status, err := dev.ReadStatus()
		if err != nil {
			return err
		}
		e, err := dev.GetExposure()
		if err != nil {
			return err
		}
		fmt.Printf("\r%s exposure %s error 0x%04X", status.FSM, e, status.SystemError)
		select {
		case <-interrupt.Channel:
		case <-time.After(time.Second):
		}
	}
	fmt.Print("\n")
	return dev.Stop()
}

func main() {
	if err := mainImpl(); err != nil {
		glog.Flush()
		fmt.Fprintf(os.Stderr, "\nvd6g-query: %s.\n", err)
		os.Exit(1)
	}
}
