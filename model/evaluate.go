package model

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/wesleyyjpark/506MBTAProject/daily"
	"github.com/wesleyyjpark/506MBTAProject/labels"
)

var ErrInsufficientData = errors.New("insufficient data")

// Split partitions the labelled rows of tbl by date: train holds rows dated
// before testStart, test holds the rest.
func Split(tbl *daily.Table, testStart civil.Date) (train, test *daily.Table) {
	labelled := func(i int) bool {
		return labels.FromValue(tbl.Get(labels.Column, i)) != labels.Unlabeled
	}
	train = tbl.Filter(func(i int, d civil.Date) bool { return labelled(i) && d.Before(testStart) })
	test = tbl.Filter(func(i int, d civil.Date) bool { return labelled(i) && !d.Before(testStart) })
	return train, test
}

type Evaluator struct {
	Params       Params
	TestStart    civil.Date
	MinTrainRows int
	// Fill replaces unknown feature cells before fitting and prediction.
	Fill float64
}

type ClassReport struct {
	Category  labels.Category `json:"category"`
	Precision float64         `json:"precision"`
	Recall    float64         `json:"recall"`
	F1        float64         `json:"f1"`
	Support   int             `json:"support"`
}

type Importance struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type Prediction struct {
	Date      civil.Date      `json:"date"`
	Actual    labels.Category `json:"actual"`
	Predicted labels.Category `json:"predicted"`
}

type Evaluation struct {
	Features      []string        `json:"features"`
	Accuracy      float64         `json:"accuracy"`
	Baseline      float64         `json:"baseline_accuracy"`
	BaselineClass labels.Category `json:"baseline_class"`
	Classes       []ClassReport   `json:"classes"`
	// Confusion is indexed [actual][predicted] in labels.Categories order.
	Confusion   [][]int      `json:"confusion"`
	Importances []Importance `json:"importances"`
	Predictions []Prediction `json:"predictions"`
	TrainRows   int          `json:"train_rows"`
	TestRows    int          `json:"test_rows"`
	TrainStart  civil.Date   `json:"train_start"`
	TrainEnd    civil.Date   `json:"train_end"`
	TestFirst   civil.Date   `json:"test_start"`
	TestEnd     civil.Date   `json:"test_end"`
}

func classIndex(c labels.Category) int { return int(c - labels.Low) }

func category(i int) labels.Category { return labels.Low + labels.Category(i) }

func labelled(tbl *daily.Table) []int {
	y := make([]int, tbl.Len())
	for i := range y {
		y[i] = classIndex(labels.FromValue(tbl.Get(labels.Column, i)))
	}
	return y
}

// Evaluate fits a forest on the rows before TestStart and scores it on the
// rows from TestStart on.
func (e *Evaluator) Evaluate(ctx context.Context, tbl *daily.Table, features []string) (*Evaluation, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: no features selected", ErrInsufficientData)
	}
	train, test := Split(tbl, e.TestStart)
	if train.Len() < e.MinTrainRows {
		return nil, fmt.Errorf("%w: %d labelled training rows before %s, need %d",
			ErrInsufficientData, train.Len(), e.TestStart, e.MinTrainRows)
	}
	if test.Len() == 0 {
		return nil, fmt.Errorf("%w: no labelled rows on or after %s", ErrInsufficientData, e.TestStart)
	}
	yTrain := labelled(train)
	present := make([]int, len(labels.Categories))
	for _, c := range yTrain {
		present[c]++
	}
	var missing []string
	for i, n := range present {
		if n == 0 {
			missing = append(missing, category(i).String())
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: training rows have no %s days", ErrInsufficientData, strings.Join(missing, "/"))
	}

	xTrain, err := train.Matrix(features, e.Fill)
	if err != nil {
		return nil, err
	}
	xTest, err := test.Matrix(features, e.Fill)
	if err != nil {
		return nil, err
	}
	forest, err := Fit(ctx, xTrain, yTrain, len(labels.Categories), e.Params)
	if err != nil {
		return nil, err
	}

	yTest := labelled(test)
	pred := make([]int, len(yTest))
	for i, x := range xTest {
		pred[i] = forest.Predict(x)
	}

	ev := &Evaluation{
		Features:  slices.Clone(features),
		TrainRows: train.Len(),
		TestRows:  test.Len(),
	}
	ev.TrainStart, ev.TrainEnd, _ = train.Span()
	ev.TestFirst, ev.TestEnd, _ = test.Span()

	majority := 0
	for c, n := range present {
		if n > present[majority] {
			majority = c
		}
	}
	ev.BaselineClass = category(majority)

	k := len(labels.Categories)
	ev.Confusion = make([][]int, k)
	for i := range ev.Confusion {
		ev.Confusion[i] = make([]int, k)
	}
	correct, baseline := 0, 0
	for i := range yTest {
		ev.Confusion[yTest[i]][pred[i]]++
		if yTest[i] == pred[i] {
			correct++
		}
		if yTest[i] == majority {
			baseline++
		}
		ev.Predictions = append(ev.Predictions, Prediction{
			Date:      test.Date(i),
			Actual:    category(yTest[i]),
			Predicted: category(pred[i]),
		})
	}
	ev.Accuracy = float64(correct) / float64(len(yTest))
	ev.Baseline = float64(baseline) / float64(len(yTest))
	ev.Classes = report(ev.Confusion)

	for j, v := range forest.Importances() {
		ev.Importances = append(ev.Importances, Importance{Name: features[j], Value: v})
	}
	slices.SortStableFunc(ev.Importances, func(a, b Importance) int {
		switch {
		case a.Value > b.Value:
			return -1
		case a.Value < b.Value:
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return ev, nil
}

// report derives per-class precision, recall and F1 from a confusion
// matrix. Undefined ratios are 0.
func report(confusion [][]int) []ClassReport {
	out := make([]ClassReport, len(confusion))
	for c := range confusion {
		tp := confusion[c][c]
		support, predicted := 0, 0
		for j := range confusion {
			support += confusion[c][j]
			predicted += confusion[j][c]
		}
		r := ClassReport{Category: category(c), Support: support}
		if predicted > 0 {
			r.Precision = float64(tp) / float64(predicted)
		}
		if support > 0 {
			r.Recall = float64(tp) / float64(support)
		}
		if r.Precision+r.Recall > 0 {
			r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
		}
		out[c] = r
	}
	return out
}
