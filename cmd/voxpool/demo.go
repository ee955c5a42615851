package main

import (
	"log"
	"math/rand/v2"
	"time"

	"github.com/lixenwraith/voxpool/asset"
	"github.com/lixenwraith/voxpool/chain"
	"github.com/lixenwraith/voxpool/graph"
	"github.com/lixenwraith/voxpool/parameter"
	"github.com/lixenwraith/voxpool/pool"
)

// Synthesized samples used when no sample files are configured
var demoTones = []struct {
	ref  graph.SampleRef
	tone asset.Tone
}{
	{"demo.kick", asset.Tone{Freq: 55, Duration: 180 * time.Millisecond, Wave: asset.WaveSine, Attack: 2 * time.Millisecond, Release: 150 * time.Millisecond, Level: 0.8}},
	{"demo.blip", asset.Tone{Freq: 880, Duration: 60 * time.Millisecond, Wave: asset.WaveSquare, Attack: time.Millisecond, Release: 30 * time.Millisecond, Level: 0.25}},
	{"demo.pad", asset.Tone{Freq: 220, Duration: 600 * time.Millisecond, Wave: asset.WaveSaw, Attack: 80 * time.Millisecond, Release: 300 * time.Millisecond, Level: 0.3}},
}

// player is the subset of the engine the demo drives
type player interface {
	SubmitPlayRequest(pool string, sample graph.SampleRef, priority int, lifetime time.Duration, params pool.Params) (*pool.Handle, error)
	Play(sample graph.SampleRef, tmpl *chain.Template, priority int, lifetime time.Duration, params pool.Params) (*pool.Handle, error)
}

func addDemoTones(bank *asset.Bank) error {
	for _, d := range demoTones {
		if err := bank.AddTone(d.ref, d.tone); err != nil {
			return err
		}
	}
	return nil
}

// demoPool is created when the configuration declares none
func demoPool() pool.Config {
	cfg := pool.DefaultConfig("demo")
	cfg.Min, cfg.Max = 2, 6
	cfg.Growth = pool.GrowGeometric
	return cfg
}

// demo submits a scripted mix of requests: mostly pooled, every eighth through a dynamic panned pool
type demo struct {
	eng     player
	pools   []string
	samples []graph.SampleRef
	wide    *chain.Template
	rng     *rand.Rand
	step    int
}

func newDemo(eng player, pools []string, samples []graph.SampleRef, seed uint64) (*demo, error) {
	wide, err := chain.Declare("demo.wide",
		graph.Describe(graph.Pan{Pan: -0.6}),
		graph.Describe(graph.Volume{Volume: -0.5}),
	)
	if err != nil {
		return nil, err
	}
	return &demo{
		eng:     eng,
		pools:   pools,
		samples: samples,
		wide:    wide,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// tick submits one request
func (d *demo) tick() {
	d.step++
	sample := d.samples[d.rng.IntN(len(d.samples))]
	params := pool.Params{
		Volume: 0.4 + 0.5*d.rng.Float64(),
		Speed:  []float64{0.5, 1, 1, 1.5}[d.rng.IntN(4)],
	}
	priority := d.rng.IntN(10)

	var err error
	if d.step%8 == 0 || len(d.pools) == 0 {
		_, err = d.eng.Play(sample, d.wide, priority, parameter.DemoLifetime, params)
	} else {
		_, err = d.eng.SubmitPlayRequest(d.pools[d.step%len(d.pools)], sample, priority, parameter.DemoLifetime, params)
	}
	if err != nil {
		log.Printf("demo: %v", err)
	}
}

func (d *demo) run(stop <-chan struct{}) {
	ticker := time.NewTicker(parameter.DemoInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.tick()
		}
	}
}
