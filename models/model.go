// Package models - Descriptors of the tumor classification models and their labels.
package models

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameIDTNet is the Inception-Dense-Transition hybrid model.
	ModelNameIDTNet Name = "IDTNet"
	// ModelNameVGG16 is the 16-layer VGG model.
	ModelNameVGG16 Name = "VGG16"
	// ModelNameDenseNet121 is the densely connected network.
	ModelNameDenseNet121 Name = "DenseNet121"
	// ModelNameInceptionV1 is GoogLeNet.
	ModelNameInceptionV1 Name = "InceptionV1"
)

// DemoResult is the fixed prediction a model reports when the service runs
// without loaded artifacts.
type DemoResult struct {
	// Class is the label to report.
	Class ClassLabel `json:"class" yaml:"class" mapstructure:"class" validate:"required"`
	// Confidence is the percentage to report.
	Confidence float64 `json:"confidence" yaml:"confidence" mapstructure:"confidence" validate:"gte=0,lte=100"`
}

// Descriptor is the static metadata of a registered model.
type Descriptor struct {
	// Name is the display name and registry key.
	Name Name `json:"name" yaml:"name" mapstructure:"name" validate:"required"`
	// Filename of the ONNX artifact inside the models directory.
	Filename string `json:"filename" yaml:"filename" mapstructure:"filename" validate:"required"`
	// Description is a short human description.
	Description string `json:"description" yaml:"description" mapstructure:"description"`
	// Accuracy is the reported test accuracy in percent.
	Accuracy float64 `json:"accuracy" yaml:"accuracy" mapstructure:"accuracy" validate:"gte=0,lte=100"`
	// Parameters is the parameter count label, e.g. "54M".
	Parameters string `json:"parameters" yaml:"parameters" mapstructure:"parameters"`
	// Icon is the font-awesome icon identifier.
	Icon string `json:"icon" yaml:"icon" mapstructure:"icon"`
	// Input is the input tensor name. Discovered from the artifact when empty.
	Input string `json:"input,omitempty" yaml:"input,omitempty" mapstructure:"input"`
	// Output is the output tensor name. Discovered from the artifact when empty.
	Output string `json:"output,omitempty" yaml:"output,omitempty" mapstructure:"output"`
	// Demo is the fixture reported in demo mode.
	Demo DemoResult `json:"demo" yaml:"demo" mapstructure:"demo"`
}

// DefaultDescriptors returns the four models the service ships with, in
// display order.
//
// Returns:
//   - []Descriptor: A fresh copy of the default descriptors.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			Name:        ModelNameIDTNet,
			Filename:    "idtnet_model.onnx",
			Description: "Inception-Dense-Transition hybrid model",
			Accuracy:    98.13,
			Parameters:  "54M",
			Icon:        "fa-brain",
			Demo:        DemoResult{Class: ClassGlioma, Confidence: 96.78},
		},
		{
			Name:        ModelNameVGG16,
			Filename:    "myvgg_model.onnx",
			Description: "Visual Geometry Group 16-layer model",
			Accuracy:    92.80,
			Parameters:  "138M",
			Icon:        "fa-layer-group",
			Demo:        DemoResult{Class: ClassGlioma, Confidence: 85.22},
		},
		{
			Name:        ModelNameDenseNet121,
			Filename:    "mydensenet_model.onnx",
			Description: "Densely connected convolutional networks",
			Accuracy:    96.10,
			Parameters:  "28M",
			Icon:        "fa-project-diagram",
			Demo:        DemoResult{Class: ClassNoTumor, Confidence: 82.29},
		},
		{
			Name:        ModelNameInceptionV1,
			Filename:    "myGoogLeNet_model.onnx",
			Description: "Google's Inception architecture",
			Accuracy:    94.20,
			Parameters:  "23M",
			Icon:        "fa-sitemap",
			Demo:        DemoResult{Class: ClassGlioma, Confidence: 92.94},
		},
	}
}
