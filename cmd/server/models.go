package main

import (
	"time"

	"github.com/liamcoop/irrigation/advisor"
	"github.com/liamcoop/irrigation/batch"
	"github.com/liamcoop/irrigation/rules"
)

// API request and response models

// DecideRequest is the body of POST /api/v1/decide. Missing readings take
// the same defaults as a batch file.
type DecideRequest struct {
	Soil     *float64 `json:"soil" example:"25"`
	Temp     *float64 `json:"temp" example:"35"`
	Humidity *float64 `json:"humidity" example:"60"`
	Crop     string   `json:"crop" example:"Rice"`
	Region   string   `json:"region,omitempty" example:"Punjab"`
	Mode     string   `json:"mode,omitempty" example:"rules"`
}

func (r DecideRequest) Query() advisor.Query {
	q := advisor.Query{
		SoilMoisture: batch.DefaultSoil,
		Temperature:  batch.DefaultTemp,
		Humidity:     batch.DefaultHumidity,
		Crop:         r.Crop,
		Region:       r.Region,
	}
	if r.Soil != nil {
		q.SoilMoisture = *r.Soil
	}
	if r.Temp != nil {
		q.Temperature = *r.Temp
	}
	if r.Humidity != nil {
		q.Humidity = *r.Humidity
	}
	if q.Crop == "" {
		q.Crop = batch.DefaultCrop
	}
	return q
}

// DecideResponse carries one result per requested mode
type DecideResponse struct {
	Results        []*advisor.Result `json:"results"`
	EvaluationTime string            `json:"evaluationTime" example:"120µs"`
}

type CropsResponse struct {
	Region string   `json:"region,omitempty" example:"Kerala"`
	Crops  []string `json:"crops"`
}

type RegionsResponse struct {
	Regions []string `json:"regions"`
}

type RuleSetsResponse struct {
	RuleSets []string `json:"ruleSets"`
}

// RuleRequest is the body for creating or updating a rule. On update,
// empty fields keep their stored value.
type RuleRequest struct {
	ID         string `json:"id,omitempty" example:"risk-heatwave"`
	Name       string `json:"name" example:"heatwave"`
	Expression string `json:"expression" example:"temp > 42.0 && soil < 50.0"`
	Verdict    string `json:"verdict" example:"High"`
	Priority   *int   `json:"priority,omitempty" example:"5"`
	Active     *bool  `json:"active,omitempty" example:"true"`
}

type RulesListResponse struct {
	RuleSet string        `json:"ruleSet"`
	Rules   []*rules.Rule `json:"rules"`
}

type HealthResponse struct {
	Status     string    `json:"status" example:"healthy"`
	RuleSets   int       `json:"ruleSets" example:"2"`
	ModelReady bool      `json:"modelReady"`
	Publisher  string    `json:"publisher,omitempty" example:"closed"`
	Time       time.Time `json:"time"`
}

type ErrorResponse struct {
	Error   string `json:"error" example:"invalid batch file"`
	Details string `json:"details,omitempty"`
}
