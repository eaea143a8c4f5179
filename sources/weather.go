package sources

import (
	"context"

	"github.com/wesleyyjpark/506MBTAProject/daily"
)

type weatherRow struct {
	Name        string   `csv:"name"`
	Datetime    string   `csv:"datetime"`
	Temp        *float64 `csv:"temp"`
	TempMax     *float64 `csv:"tempmax"`
	TempMin     *float64 `csv:"tempmin"`
	Humidity    *float64 `csv:"humidity"`
	Precip      *float64 `csv:"precip"`
	PrecipCover *float64 `csv:"precipcover"`
	PrecipType  string   `csv:"preciptype"`
	Snow        *float64 `csv:"snow"`
	SnowDepth   *float64 `csv:"snowdepth"`
	WindSpeed   *float64 `csv:"windspeed"`
}

// Weather column names, unqualified.
const (
	Temp        = "temp"
	TempMax     = "tempmax"
	TempMin     = "tempmin"
	Humidity    = "humidity"
	Precip      = "precip"
	PrecipCover = "precipcover"
	Snow        = "snow"
	SnowDepth   = "snowdepth"
	WindSpeed   = "windspeed"
)

// WeatherLoader reads a daily weather export. Blank cells stay unknown.
type WeatherLoader struct {
	Path string
}

func (l *WeatherLoader) Name() string { return Weather }

func (l *WeatherLoader) Load(ctx context.Context) (*Result, error) {
	var rows []weatherRow
	if _, err := decodeCSV(Weather, l.Path, &rows, "datetime", Precip, Snow); err != nil {
		return nil, err
	}

	p := daily.NewPartial(Weather, map[string]daily.Reducer{
		Temp: daily.Mean, TempMax: daily.Mean, TempMin: daily.Mean, Humidity: daily.Mean,
		Precip: daily.Mean, PrecipCover: daily.Mean, Snow: daily.Mean, SnowDepth: daily.Mean,
		WindSpeed: daily.Mean,
	})
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := daily.ParseDate(row.Datetime)
		if err != nil {
			return nil, mismatch(Weather, l.Path, "row %d: %v", i+2, err)
		}
		p.Add(d, map[string]daily.Value{
			Temp:        daily.FromPtr(row.Temp),
			TempMax:     daily.FromPtr(row.TempMax),
			TempMin:     daily.FromPtr(row.TempMin),
			Humidity:    daily.FromPtr(row.Humidity),
			Precip:      daily.FromPtr(row.Precip),
			PrecipCover: daily.FromPtr(row.PrecipCover),
			Snow:        daily.FromPtr(row.Snow),
			SnowDepth:   daily.FromPtr(row.SnowDepth),
			WindSpeed:   daily.FromPtr(row.WindSpeed),
		})
	}
	return &Result{Partial: p}, nil
}
