// Copyright 2026 The Armored RoT authors. All Rights Reserved.
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

// The arksim tool runs the boot chain against simulated hardware, driven by
// YAML scenarios describing injected faults.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"k8s.io/klog"

	"github.com/transparency-dev/armored-rot/internal/metrics"
)

var (
	scenarioFiles = flag.String("scenario", "", "Comma separated list of scenario files.")
	listen        = flag.String("listen", "", "Address to serve /metrics on after the scenarios ran, empty to exit.")
	dumpMetrics   = flag.Bool("dump_metrics", false, "Print the root of trust metrics after each scenario.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *scenarioFiles == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	m := metrics.New()
	m.Registry().MustRegister(collectors.NewGoCollector())

	failed := 0

	for _, path := range strings.Split(*scenarioFiles, ",") {
		s, err := Load(path)
		if err != nil {
			klog.Exitf("Load: %v", err)
		}

		o, _, err := s.Run(m)
		if err != nil {
			klog.Exitf("%s: %v", s.Name, err)
		}

		fmt.Println(o.Status().Print())

		if err := s.Check(o); err != nil {
			klog.Errorf("%s: FAIL: %v", s.Name, err)
			failed++
		} else {
			klog.Infof("%s: PASS", s.Name)
		}

		if *dumpMetrics {
			if err := dump(os.Stdout, m.Registry()); err != nil {
				klog.Exitf("Gather: %v", err)
			}
		}
	}

	if *listen != "" {
		http.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
		klog.Infof("Serving metrics on %s", *listen)
		klog.Exit(http.ListenAndServe(*listen, nil))
	}

	if failed > 0 {
		klog.Exitf("%d scenarios failed", failed)
	}
}

// dump prints the root of trust samples, one per line.
func dump(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}

	var lines []string

	for _, mf := range mfs {
		if !strings.HasPrefix(mf.GetName(), "ark_") {
			continue
		}

		for _, m := range mf.GetMetric() {
			lines = append(lines, fmt.Sprintf("%s%s %v", mf.GetName(), labels(m), value(mf.GetType(), m)))
		}
	}

	sort.Strings(lines)

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}

	return nil
}

func labels(m *dto.Metric) string {
	if len(m.GetLabel()) == 0 {
		return ""
	}

	var l []string

	for _, lp := range m.GetLabel() {
		l = append(l, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}

	return "{" + strings.Join(l, ",") + "}"
}

func value(t dto.MetricType, m *dto.Metric) any {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	case dto.MetricType_HISTOGRAM:
		return fmt.Sprintf("count=%d sum=%g", m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
	default:
		return "?"
	}
}
