package evaluate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

const (
	SummaryFile     = "evaluation_summary.txt"
	ResultsFile     = "evaluation_results.json"
	PredictionsFile = "predictions.csv"
	WorkbookFile    = "evaluation.xlsx"
)

// Reporter writes a Report to an output directory.
type Reporter struct {
	report     *Report
	outputPath string
}

func NewReporter(report *Report, outputPath string) *Reporter {
	return &Reporter{report: report, outputPath: outputPath}
}

// GenerateReport writes every report format and one importance chart per base learner.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	steps := []func() error{
		r.generateSummary,
		r.generatePredictions,
		r.generateJSONReport,
		r.generateWorkbook,
		r.generateCharts,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reporter) generateSummary() error {
	path := filepath.Join(r.outputPath, SummaryFile)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	rep := r.report
	fmt.Fprintf(file, "CLINICAL ENSEMBLE EVALUATION\n")
	fmt.Fprintf(file, "============================\n\n")
	fmt.Fprintf(file, "Run: %s\n", rep.RunID)
	fmt.Fprintf(file, "Split mode: %s (seed %d)\n", rep.SplitMode, rep.Seed)
	fmt.Fprintf(file, "Duration: %s\n\n", rep.FinishedAt.Sub(rep.StartedAt))

	fmt.Fprintf(file, "PARTITIONS\n")
	fmt.Fprintf(file, "----------\n")
	fmt.Fprintf(file, "Input rows: %d\n", rep.Partition.Input)
	fmt.Fprintf(file, "Train rows: %d (balanced %d, synthetic %d)\n",
		rep.Partition.Train, rep.Partition.Balanced, rep.Partition.Synthetic)
	fmt.Fprintf(file, "Stacking rows: %d\n", rep.Partition.Stack)
	fmt.Fprintf(file, "Test rows: %d\n\n", rep.Partition.Test)

	fmt.Fprintf(file, "MODELS\n")
	fmt.Fprintf(file, "------\n")
	for _, m := range rep.Models {
		fmt.Fprintf(file, "%-8s accuracy %.4f  auc %.4f  f1 %.4f  precision %.4f  recall %.4f  brier %.4f\n",
			m.Model, m.Accuracy, m.AUC, m.F1, m.Precision, m.Recall, m.Brier)
	}

	fmt.Fprintf(file, "\nSTACKING\n")
	fmt.Fprintf(file, "--------\n")
	fmt.Fprintf(file, "p = sigmoid(%.4f + %.4f*p_bagged + %.4f*p_boosted)\n",
		rep.Ensemble.Bias, rep.Ensemble.WeightA, rep.Ensemble.WeightB)

	for _, variant := range r.variants() {
		fmt.Fprintf(file, "\nTOP FEATURES (%s)\n", variant)
		for i, fi := range rep.Importances[variant] {
			if i == 5 {
				break
			}
			fmt.Fprintf(file, "%d. %s %.4f\n", i+1, fi.Name, fi.Score)
		}
	}

	if len(rep.Warnings) > 0 {
		fmt.Fprintf(file, "\nWARNINGS\n")
		for _, w := range rep.Warnings {
			fmt.Fprintf(file, "- %s\n", w)
		}
	}

	log.Info().Str("file", path).Msg("Summary report generated")
	return nil
}

func (r *Reporter) generatePredictions() error {
	path := filepath.Join(r.outputPath, PredictionsFile)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create predictions file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(predictionHeader); err != nil {
		return err
	}
	for _, p := range r.report.Predictions {
		if err := writer.Write(predictionRow(p)); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}

	log.Info().Str("file", path).Int("rows", len(r.report.Predictions)).Msg("Predictions written")
	return nil
}

func (r *Reporter) generateJSONReport() error {
	path := filepath.Join(r.outputPath, ResultsFile)
	data, err := json.MarshalIndent(r.report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", path).Msg("JSON report generated")
	return nil
}

// generateWorkbook writes Metrics, Importances and Predictions sheets.
func (r *Reporter) generateWorkbook() error {
	f := excelize.NewFile()
	defer f.Close()

	metrics := [][]interface{}{{"Model", "Rows", "Accuracy", "AUC", "F1", "Precision", "Recall", "Brier", "TP", "FP", "TN", "FN"}}
	for _, m := range r.report.Models {
		metrics = append(metrics, []interface{}{
			m.Model, m.Rows, m.Accuracy, m.AUC, m.F1, m.Precision, m.Recall, m.Brier,
			m.TruePositives, m.FalsePositives, m.TrueNegatives, m.FalseNegatives,
		})
	}

	importances := [][]interface{}{{"Model", "Rank", "Feature", "Score"}}
	for _, variant := range r.variants() {
		for i, fi := range r.report.Importances[variant] {
			importances = append(importances, []interface{}{variant, i + 1, fi.Name, fi.Score})
		}
	}

	predictions := [][]interface{}{{"Row", "Label", "Bagged", "Boosted", "Stacked"}}
	for _, p := range r.report.Predictions {
		predictions = append(predictions, []interface{}{p.Row, int(p.Label), p.Bagged, p.Boosted, p.Stacked})
	}

	if err := f.SetSheetName("Sheet1", "Metrics"); err != nil {
		return err
	}
	if err := writeSheet(f, "Metrics", metrics); err != nil {
		return err
	}
	for name, rows := range map[string][][]interface{}{"Importances": importances, "Predictions": predictions} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
		if err := writeSheet(f, name, rows); err != nil {
			return err
		}
	}

	path := filepath.Join(r.outputPath, WorkbookFile)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	log.Info().Str("file", path).Msg("Workbook generated")
	return nil
}

func (r *Reporter) generateCharts() error {
	for _, variant := range r.variants() {
		path := filepath.Join(r.outputPath, "importance_"+variant+".png")
		title := fmt.Sprintf("Feature importance (%s)", variant)
		if err := SaveImportanceChart(path, title, r.report.Importances[variant]); err != nil {
			return err
		}
	}
	return nil
}

// PrintSummary prints the headline scores to stdout.
func (r *Reporter) PrintSummary() {
	rep := r.report
	fmt.Println("\n=== EVALUATION RESULTS ===")
	fmt.Printf("Split Mode: %s\n", rep.SplitMode)
	fmt.Printf("Test Rows: %d (stacking %d)\n", rep.Partition.Test, rep.Partition.Stack)
	for _, m := range rep.Models {
		fmt.Printf("%-8s Accuracy: %.2f%%  AUC: %.4f\n", m.Model, m.Accuracy*100, m.AUC)
	}
	fmt.Printf("Stacking Weights: bagged %.4f, boosted %.4f\n", rep.Ensemble.WeightA, rep.Ensemble.WeightB)
	for _, w := range rep.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	fmt.Println("==========================")
}

// variants returns the importance keys in a stable order.
func (r *Reporter) variants() []string {
	out := make([]string, 0, len(r.report.Importances))
	for k := range r.report.Importances {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func writeSheet(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

var predictionHeader = []string{"row", "label", "p_bagged", "p_boosted", "p_stacked"}

func predictionRow(p Prediction) []string {
	return []string{
		strconv.Itoa(p.Row),
		strconv.Itoa(int(p.Label)),
		strconv.FormatFloat(p.Bagged, 'f', 6, 64),
		strconv.FormatFloat(p.Boosted, 'f', 6, 64),
		strconv.FormatFloat(p.Stacked, 'f', 6, 64),
	}
}
